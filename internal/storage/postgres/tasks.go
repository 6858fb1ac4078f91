package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
)

const taskColumns = `id, task_type, target_id, name, interval_seconds, enabled, last_run, last_status, created_at, updated_at`

func scanTask(row pgx.Row) (crawler.MonitorTask, error) {
	var (
		t          crawler.MonitorTask
		taskType   string
		lastStatus *string
	)
	err := row.Scan(
		&t.ID, &taskType, &t.TargetID, &t.Name, &t.IntervalSeconds, &t.Enabled,
		&t.LastRun, &lastStatus, &t.CreatedAt, &t.UpdatedAt,
	)
	t.Type = crawler.TaskType(taskType)
	if lastStatus != nil {
		t.LastStatus = *lastStatus
	}
	return t, err
}

// CreateTask inserts a task and returns it with its id.
func (s *Store) CreateTask(ctx context.Context, task crawler.MonitorTask) (crawler.MonitorTask, error) {
	if !task.Type.Valid() {
		return crawler.MonitorTask{}, fmt.Errorf("invalid task type %q", task.Type)
	}
	now := s.clock.Now()
	err := s.pool.QueryRow(ctx, `
INSERT INTO monitor_tasks (task_type, target_id, name, interval_seconds, enabled, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
RETURNING id`,
		string(task.Type), task.TargetID, task.Name, task.IntervalSeconds, task.Enabled, now,
	).Scan(&task.ID)
	if err != nil {
		return crawler.MonitorTask{}, fmt.Errorf("insert task: %w", err)
	}
	task.CreatedAt = now
	task.UpdatedAt = now
	return task, nil
}

// GetTask returns one task or crawler.ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id int64) (crawler.MonitorTask, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM monitor_tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.MonitorTask{}, crawler.ErrNotFound
		}
		return crawler.MonitorTask{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns all tasks by id.
func (s *Store) ListTasks(ctx context.Context) ([]crawler.MonitorTask, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM monitor_tasks ORDER BY id`)
}

// ActiveTasks returns the enabled tasks by id.
func (s *Store) ActiveTasks(ctx context.Context) ([]crawler.MonitorTask, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM monitor_tasks WHERE enabled ORDER BY id`)
}

func (s *Store) queryTasks(ctx context.Context, query string) ([]crawler.MonitorTask, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []crawler.MonitorTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// UpdateLastRun records the outcome of a task run.
func (s *Store) UpdateLastRun(ctx context.Context, id int64, at time.Time, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitor_tasks SET last_run = $1, last_status = $2, updated_at = $3 WHERE id = $4`,
		at, status, s.clock.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("update task last run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitor_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// AddLog appends a crawl log entry.
func (s *Store) AddLog(ctx context.Context, entry crawler.CrawlLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO crawl_logs (target_type, target_id, status, message, created_at) VALUES ($1,$2,$3,$4,$5)`,
		entry.TargetType, entry.TargetID, entry.Status, entry.Message, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert crawl log: %w", err)
	}
	return nil
}

// RecentLogs returns the newest log entries first.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]crawler.CrawlLog, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, target_type, target_id, status, message, created_at
FROM crawl_logs ORDER BY created_at DESC, id DESC LIMIT $1`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query crawl logs: %w", err)
	}
	defer rows.Close()

	logs := []crawler.CrawlLog{}
	for rows.Next() {
		var l crawler.CrawlLog
		if err := rows.Scan(&l.ID, &l.TargetType, &l.TargetID, &l.Status, &l.Message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan crawl log row: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl logs: %w", err)
	}
	return logs, nil
}
