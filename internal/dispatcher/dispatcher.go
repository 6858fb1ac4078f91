// Package dispatcher runs the crawl workers and admits monitor tasks onto
// their shared queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
	"github.com/JakeFAU/tiktok-monitor/internal/worker"
)

// ErrInvalidTask rejects tasks no worker can execute.
var ErrInvalidTask = errors.New("invalid monitor task")

type closer interface {
	Close()
}

// Dispatcher fans queued monitor tasks out to a pool of workers.
type Dispatcher struct {
	queue   crawler.TaskQueue
	workers []*worker.Worker
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(queue crawler.TaskQueue, workers []*worker.Worker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		logger:  logger,
	}
}

// Run starts every worker and blocks until ctx ends and all workers have
// returned. A queue with a Close method is closed once ctx ends so pending
// enqueues fail with crawler.ErrQueueClosed instead of blocking.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	d.logger.Info("dispatcher started", zap.Int("workers", len(d.workers)))

	<-ctx.Done()
	if c, ok := d.queue.(closer); ok {
		c.Close()
	}
	wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Enqueue admits a task for the workers. Tasks without a known type or a
// target are rejected before they reach the queue.
func (d *Dispatcher) Enqueue(ctx context.Context, task crawler.MonitorTask) error {
	fields := []zap.Field{
		zap.Int64("task_id", task.ID),
		zap.String("task_type", string(task.Type)),
		zap.String("target_id", task.TargetID),
	}
	if !task.Type.Valid() || task.TargetID == "" {
		d.logger.Warn("rejected monitor task", fields...)
		return fmt.Errorf("task %d (%q, %q): %w", task.ID, task.Type, task.TargetID, ErrInvalidTask)
	}
	if err := d.queue.Enqueue(ctx, task); err != nil {
		d.logger.Warn("enqueue monitor task failed", append(fields, zap.Error(err))...)
		return fmt.Errorf("queue enqueue: %w", err)
	}
	d.logger.Debug("enqueued monitor task", fields...)
	return nil
}
