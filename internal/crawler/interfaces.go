package crawler

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrQueueClosed is returned by a TaskQueue after shutdown.
var ErrQueueClosed = errors.New("queue closed")

// Fetcher performs outbound calls. Failures are reported as absences, never
// as errors.
type Fetcher interface {
	// Fetch returns the response body of an HTTP 200 reply.
	Fetch(ctx context.Context, req Request) Outcome[[]byte]
	// Resolve follows redirects without signing and returns the final URL.
	Resolve(ctx context.Context, rawURL string) Outcome[string]
}

// RecordStore upserts crawled records by natural key, last write wins.
type RecordStore interface {
	UpsertVideo(ctx context.Context, video Video) error
	UpsertUser(ctx context.Context, user User) error
}

// RecordReader serves stored records.
type RecordReader interface {
	GetVideo(ctx context.Context, videoID string) (Video, error)
	ListVideos(ctx context.Context, limit, offset int) ([]Video, error)
	TopVideos(ctx context.Context, limit int) ([]Video, error)
	VideosByAuthor(ctx context.Context, authorID string) ([]Video, error)
	VideoHistory(ctx context.Context, videoID string, limit int) ([]VideoSnapshot, error)
	GetUser(ctx context.Context, secUID string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]User, error)
}

// TaskStore persists monitor tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task MonitorTask) (MonitorTask, error)
	GetTask(ctx context.Context, id int64) (MonitorTask, error)
	ListTasks(ctx context.Context) ([]MonitorTask, error)
	ActiveTasks(ctx context.Context) ([]MonitorTask, error)
	UpdateLastRun(ctx context.Context, id int64, at time.Time, status string) error
	DeleteTask(ctx context.Context, id int64) error
}

// CrawlLogStore persists crawl audit rows.
type CrawlLogStore interface {
	AddLog(ctx context.Context, entry CrawlLog) error
	RecentLogs(ctx context.Context, limit int) ([]CrawlLog, error)
}

// Store is the full persistence surface of the service.
type Store interface {
	RecordStore
	RecordReader
	TaskStore
	CrawlLogStore
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes crawl events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event CrawlEvent) (string, error)
}

// TaskQueue hands due monitor tasks to workers.
type TaskQueue interface {
	Enqueue(ctx context.Context, task MonitorTask) error
	Dequeue(ctx context.Context) (MonitorTask, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}
