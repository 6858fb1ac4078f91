package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
)

// Store implements crawler.Store in memory for development and tests.
type Store struct {
	mu       sync.RWMutex
	clock    crawler.Clock
	videos   map[string]crawler.Video
	order    []string
	users    map[string]crawler.User
	userSeq  []string
	history  []crawler.VideoSnapshot
	tasks    map[int64]crawler.MonitorTask
	logs     []crawler.CrawlLog
	nextTask int64
	nextSnap int64
	nextLog  int64
}

// NewStore constructs a Store. A nil clock uses UTC wall time.
func NewStore(clock crawler.Clock) *Store {
	if clock == nil {
		clock = utcClock{}
	}
	return &Store{
		clock:  clock,
		videos: make(map[string]crawler.Video),
		users:  make(map[string]crawler.User),
		tasks:  make(map[int64]crawler.MonitorTask),
	}
}

// UpsertVideo creates or replaces a video and appends a history row.
func (s *Store) UpsertVideo(_ context.Context, video crawler.Video) error {
	if video.VideoID == "" {
		return fmt.Errorf("video id is required")
	}
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.videos[video.VideoID]; ok {
		video.CreatedAt = existing.CreatedAt
	} else {
		video.CreatedAt = now
		s.order = append(s.order, video.VideoID)
	}
	video.UpdatedAt = now
	s.videos[video.VideoID] = video

	s.nextSnap++
	snap := video.Snapshot(now)
	snap.ID = s.nextSnap
	s.history = append(s.history, snap)
	return nil
}

// UpsertUser creates or replaces a user.
func (s *Store) UpsertUser(_ context.Context, user crawler.User) error {
	if user.SecUID == "" {
		return fmt.Errorf("sec_uid is required")
	}
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[user.SecUID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = now
		s.userSeq = append(s.userSeq, user.SecUID)
	}
	user.UpdatedAt = now
	s.users[user.SecUID] = user
	return nil
}

// GetVideo returns one video or crawler.ErrNotFound.
func (s *Store) GetVideo(_ context.Context, videoID string) (crawler.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[videoID]
	if !ok {
		return crawler.Video{}, crawler.ErrNotFound
	}
	return v, nil
}

// ListVideos returns videos in insertion order.
func (s *Store) ListVideos(_ context.Context, limit, offset int) ([]crawler.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := window(s.order, limit, offset)
	out := make([]crawler.Video, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.videos[id])
	}
	return out, nil
}

// TopVideos returns the most played videos first.
func (s *Store) TopVideos(_ context.Context, limit int) ([]crawler.Video, error) {
	s.mu.RLock()
	out := make([]crawler.Video, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.videos[id])
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PlayCount > out[j].PlayCount
	})
	return window(out, limit, 0), nil
}

// VideosByAuthor returns every video of one author.
func (s *Store) VideosByAuthor(_ context.Context, authorID string) ([]crawler.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.Video
	for _, id := range s.order {
		if v := s.videos[id]; v.AuthorID == authorID {
			out = append(out, v)
		}
	}
	return out, nil
}

// VideoHistory returns the newest snapshots of one video first.
func (s *Store) VideoHistory(_ context.Context, videoID string, limit int) ([]crawler.VideoSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.VideoSnapshot
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].VideoID == videoID {
			out = append(out, s.history[i])
		}
	}
	return window(out, limit, 0), nil
}

// GetUser returns one user or crawler.ErrNotFound.
func (s *Store) GetUser(_ context.Context, secUID string) (crawler.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[secUID]
	if !ok {
		return crawler.User{}, crawler.ErrNotFound
	}
	return u, nil
}

// GetUserByUsername returns the first user with username.
func (s *Store) GetUserByUsername(_ context.Context, username string) (crawler.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.userSeq {
		if u := s.users[id]; u.Username == username {
			return u, nil
		}
	}
	return crawler.User{}, crawler.ErrNotFound
}

// ListUsers returns users in insertion order.
func (s *Store) ListUsers(_ context.Context, limit, offset int) ([]crawler.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := window(s.userSeq, limit, offset)
	out := make([]crawler.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.users[id])
	}
	return out, nil
}

// CreateTask stores a task and assigns its id.
func (s *Store) CreateTask(_ context.Context, task crawler.MonitorTask) (crawler.MonitorTask, error) {
	if !task.Type.Valid() {
		return crawler.MonitorTask{}, fmt.Errorf("invalid task type %q", task.Type)
	}
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTask++
	task.ID = s.nextTask
	task.CreatedAt = now
	task.UpdatedAt = now
	s.tasks[task.ID] = task
	return task, nil
}

// GetTask returns one task or crawler.ErrNotFound.
func (s *Store) GetTask(_ context.Context, id int64) (crawler.MonitorTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return crawler.MonitorTask{}, crawler.ErrNotFound
	}
	return task, nil
}

// ListTasks returns all tasks by id.
func (s *Store) ListTasks(_ context.Context) ([]crawler.MonitorTask, error) {
	return s.filterTasks(func(crawler.MonitorTask) bool { return true }), nil
}

// ActiveTasks returns the enabled tasks by id.
func (s *Store) ActiveTasks(_ context.Context) ([]crawler.MonitorTask, error) {
	return s.filterTasks(func(t crawler.MonitorTask) bool { return t.Enabled }), nil
}

func (s *Store) filterTasks(keep func(crawler.MonitorTask) bool) []crawler.MonitorTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.MonitorTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateLastRun records the outcome of a task run.
func (s *Store) UpdateLastRun(_ context.Context, id int64, at time.Time, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return crawler.ErrNotFound
	}
	task.LastRun = &at
	task.LastStatus = status
	task.UpdatedAt = s.clock.Now()
	s.tasks[id] = task
	return nil
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return crawler.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// AddLog appends a crawl log entry.
func (s *Store) AddLog(_ context.Context, entry crawler.CrawlLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLog++
	entry.ID = s.nextLog
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}
	s.logs = append(s.logs, entry)
	return nil
}

// RecentLogs returns the newest log entries first.
func (s *Store) RecentLogs(_ context.Context, limit int) ([]crawler.CrawlLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.CrawlLog, 0, len(s.logs))
	for i := len(s.logs) - 1; i >= 0; i-- {
		out = append(out, s.logs[i])
	}
	return window(out, limit, 0), nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// window applies limit and offset to items. A non-positive limit means all.
func window[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

type utcClock struct{}

func (utcClock) Now() time.Time {
	return time.Now().UTC()
}

var _ crawler.Store = (*Store)(nil)
