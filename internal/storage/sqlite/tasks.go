package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
)

const taskColumns = `id, task_type, target_id, name, interval_seconds, enabled, last_run, last_status, created_at, updated_at`

func scanTask(row scanner) (crawler.MonitorTask, error) {
	var (
		t                crawler.MonitorTask
		taskType         string
		lastRun          sql.NullString
		lastStatus       sql.NullString
		created, updated string
	)
	if err := row.Scan(
		&t.ID, &taskType, &t.TargetID, &t.Name, &t.IntervalSeconds, &t.Enabled,
		&lastRun, &lastStatus, &created, &updated,
	); err != nil {
		return crawler.MonitorTask{}, err
	}
	t.Type = crawler.TaskType(taskType)
	t.LastStatus = lastStatus.String
	if lastRun.Valid {
		ran, err := parseTime(lastRun.String)
		if err != nil {
			return crawler.MonitorTask{}, err
		}
		t.LastRun = &ran
	}
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return crawler.MonitorTask{}, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return crawler.MonitorTask{}, err
	}
	return t, nil
}

// CreateTask inserts a task and returns it with its id.
func (s *Store) CreateTask(ctx context.Context, task crawler.MonitorTask) (crawler.MonitorTask, error) {
	if !task.Type.Valid() {
		return crawler.MonitorTask{}, fmt.Errorf("invalid task type %q", task.Type)
	}
	now := s.clock.Now()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO monitor_tasks (task_type, target_id, name, interval_seconds, enabled, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(task.Type), task.TargetID, task.Name, task.IntervalSeconds, task.Enabled, formatTime(now), formatTime(now),
	)
	if err != nil {
		return crawler.MonitorTask{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return crawler.MonitorTask{}, fmt.Errorf("task id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now.UTC()
	task.UpdatedAt = now.UTC()
	return task, nil
}

// GetTask returns one task or crawler.ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id int64) (crawler.MonitorTask, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM monitor_tasks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM monitor_tasks WHERE enabled = 1 ORDER BY id`)
}

func (s *Store) queryTasks(ctx context.Context, query string) ([]crawler.MonitorTask, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitor_tasks SET last_run = ?, last_status = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), status, formatTime(s.clock.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update task last run: %w", err)
	}
	return requireAffected(res)
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitor_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// AddLog appends a crawl log entry.
func (s *Store) AddLog(ctx context.Context, entry crawler.CrawlLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO crawl_logs (target_type, target_id, status, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.TargetType, entry.TargetID, entry.Status, entry.Message, formatTime(entry.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert crawl log: %w", err)
	}
	return nil
}

// RecentLogs returns the newest log entries first.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]crawler.CrawlLog, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, target_type, target_id, status, message, created_at
FROM crawl_logs ORDER BY created_at DESC, id DESC LIMIT ?`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query crawl logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	logs := []crawler.CrawlLog{}
	for rows.Next() {
		var (
			l       crawler.CrawlLog
			created string
		)
		if err := rows.Scan(&l.ID, &l.TargetType, &l.TargetID, &l.Status, &l.Message, &created); err != nil {
			return nil, fmt.Errorf("scan crawl log row: %w", err)
		}
		if l.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl logs: %w", err)
	}
	return logs, nil
}
