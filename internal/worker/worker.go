// Package worker executes queued monitor tasks.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
	"github.com/JakeFAU/tiktok-monitor/internal/metrics"
)

// Crawler runs the crawl behind each task type. *crawler.Manager satisfies it.
type Crawler interface {
	CrawlVideo(ctx context.Context, videoID string) bool
	CrawlUser(ctx context.Context, secUID string) bool
	CrawlUserVideos(ctx context.Context, secUID string, budget crawler.Budget) int
}

// Releaser is told when a task has finished so it may be scheduled again.
type Releaser interface {
	Finish(taskID int64)
}

// ReleaseFunc adapts a function to Releaser.
type ReleaseFunc func(taskID int64)

// Finish calls f.
func (f ReleaseFunc) Finish(taskID int64) {
	f(taskID)
}

// Dequeuer yields queued tasks.
type Dequeuer interface {
	Dequeue(ctx context.Context) (crawler.MonitorTask, error)
}

// Config controls Worker behavior.
type Config struct {
	// Budget bounds user_videos tasks.
	Budget crawler.Budget
}

// Worker consumes queued tasks and runs them.
type Worker struct {
	queue     Dequeuer
	crawler   Crawler
	tasks     crawler.TaskStore
	logs      crawler.CrawlLogStore
	publisher crawler.Publisher
	releaser  Releaser
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher and releaser may be nil.
func New(
	queue Dequeuer,
	c Crawler,
	tasks crawler.TaskStore,
	logs crawler.CrawlLogStore,
	publisher crawler.Publisher,
	releaser Releaser,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		crawler:   c,
		tasks:     tasks,
		logs:      logs,
		publisher: publisher,
		releaser:  releaser,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queued tasks until the context finishes or the
// queue is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.Int64("task_id", task.ID))
		w.Process(ctx, task)
	}
}

// Process runs one task: it crawls the target, records last_run and a crawl
// log, publishes a CrawlEvent and releases the task. Bookkeeping failures are
// logged; the task is released regardless.
func (w *Worker) Process(ctx context.Context, task crawler.MonitorTask) {
	defer w.release(task.ID)

	upserted, ok, msg := w.execute(ctx, task)
	status := crawler.StatusSuccess
	if !ok {
		status = crawler.StatusFailed
	}
	metrics.ObserveTask(string(task.Type), status)
	finished := w.clock.Now()

	fields := []zap.Field{
		zap.Int64("task_id", task.ID),
		zap.String("task_type", string(task.Type)),
		zap.String("target_id", task.TargetID),
		zap.String("status", status),
	}
	if ok {
		w.logger.Info("task finished", append(fields, zap.Int("upserted", upserted))...)
	} else {
		w.logger.Warn("task failed", append(fields, zap.String("message", msg))...)
	}

	if task.ID != 0 {
		if err := w.tasks.UpdateLastRun(ctx, task.ID, finished, status); err != nil {
			w.logger.Error("update last run failed", zap.Int64("task_id", task.ID), zap.Error(err))
		}
	}
	if err := w.logs.AddLog(ctx, crawler.CrawlLog{
		TargetType: string(task.Type),
		TargetID:   task.TargetID,
		Status:     status,
		Message:    msg,
		CreatedAt:  finished,
	}); err != nil {
		w.logger.Error("add crawl log failed", zap.Int64("task_id", task.ID), zap.Error(err))
	}
	w.publish(ctx, crawler.CrawlEvent{
		TaskID:     task.ID,
		TaskType:   task.Type,
		TargetID:   task.TargetID,
		Status:     status,
		Upserted:   upserted,
		FinishedAt: finished,
	})
}

// execute dispatches on the task type. A user_videos task succeeds even when
// the listing yields nothing; the count is reported in the message.
func (w *Worker) execute(ctx context.Context, task crawler.MonitorTask) (int, bool, string) {
	switch task.Type {
	case crawler.TaskVideo:
		if w.crawler.CrawlVideo(ctx, task.TargetID) {
			return 1, true, "video crawled"
		}
		return 0, false, "video crawl failed"
	case crawler.TaskUser:
		if w.crawler.CrawlUser(ctx, task.TargetID) {
			return 1, true, "user crawled"
		}
		return 0, false, "user crawl failed"
	case crawler.TaskUserVideos:
		n := w.crawler.CrawlUserVideos(ctx, task.TargetID, w.cfg.Budget)
		return n, true, fmt.Sprintf("crawled %d videos", n)
	default:
		return 0, false, fmt.Sprintf("unknown task type %q", task.Type)
	}
}

func (w *Worker) publish(ctx context.Context, event crawler.CrawlEvent) {
	if w.publisher == nil {
		return
	}
	id, err := w.publisher.Publish(ctx, event)
	if err != nil {
		w.logger.Error("publish crawl event failed", zap.Int64("task_id", event.TaskID), zap.Error(err))
		return
	}
	w.logger.Debug("crawl event published", zap.Int64("task_id", event.TaskID), zap.String("message_id", id))
}

func (w *Worker) release(taskID int64) {
	if w.releaser != nil {
		w.releaser.Finish(taskID)
	}
}
