// Package scheduler turns persisted monitor tasks into queued work.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
	"github.com/JakeFAU/tiktok-monitor/internal/metrics"
)

// Enqueuer accepts due tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, task crawler.MonitorTask) error
}

// Scheduler polls the task store and enqueues due tasks. A task id is never
// in flight twice: it stays marked until Finish is called for it.
type Scheduler struct {
	tasks    crawler.TaskStore
	queue    Enqueuer
	clock    crawler.Clock
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// New builds a Scheduler polling every interval.
func New(
	tasks crawler.TaskStore,
	queue Enqueuer,
	clock crawler.Clock,
	interval time.Duration,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		tasks:    tasks,
		queue:    queue,
		clock:    clock,
		interval: interval,
		logger:   logger,
		inFlight: make(map[int64]struct{}),
	}
}

// Run polls until the context finishes. The first poll happens immediately.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick enqueues every due task that is not already in flight and returns
// how many were enqueued.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	active, err := s.tasks.ActiveTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active tasks: %w", err)
	}
	now := s.clock.Now()
	enqueued := 0
	for _, task := range active {
		if !task.Due(now) || !s.claim(task.ID) {
			continue
		}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			s.Finish(task.ID)
			return enqueued, fmt.Errorf("enqueue task %d: %w", task.ID, err)
		}
		enqueued++
		s.logger.Debug("task enqueued",
			zap.Int64("task_id", task.ID),
			zap.String("task_type", string(task.Type)),
			zap.String("target_id", task.TargetID),
		)
	}
	return enqueued, nil
}

// Finish releases the in-flight mark of a task.
func (s *Scheduler) Finish(taskID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[taskID]; !ok {
		return
	}
	delete(s.inFlight, taskID)
	metrics.DecTasksInFlight()
}

// InFlight reports whether a task is queued or running.
func (s *Scheduler) InFlight(taskID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[taskID]
	return ok
}

func (s *Scheduler) claim(taskID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[taskID]; ok {
		return false
	}
	s.inFlight[taskID] = struct{}{}
	metrics.IncTasksInFlight()
	return true
}
