package crawler

import (
	"net/url"
	"strings"
	"time"
)

// DefaultPageSize is the listing page size used when a Budget leaves it unset.
const DefaultPageSize = 30

// Video is the persisted view of one video, keyed by VideoID.
type Video struct {
	VideoID      string    `json:"video_id"`
	Description  string    `json:"desc"`
	CreateTime   int64     `json:"create_time"`
	DiggCount    int64     `json:"digg_count"`
	ShareCount   int64     `json:"share_count"`
	CommentCount int64     `json:"comment_count"`
	PlayCount    int64     `json:"play_count"`
	CollectCount int64     `json:"collect_count"`
	AuthorID     string    `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Snapshot returns the metric columns of v as a history row.
func (v Video) Snapshot(at time.Time) VideoSnapshot {
	return VideoSnapshot{
		VideoID:      v.VideoID,
		DiggCount:    v.DiggCount,
		ShareCount:   v.ShareCount,
		CommentCount: v.CommentCount,
		PlayCount:    v.PlayCount,
		CollectCount: v.CollectCount,
		CrawledAt:    at,
	}
}

// User is the persisted view of one account, keyed by SecUID.
type User struct {
	SecUID         string    `json:"sec_uid"`
	Username       string    `json:"username"`
	Nickname       string    `json:"nickname"`
	FollowerCount  int64     `json:"follower_count"`
	FollowingCount int64     `json:"following_count"`
	LikesCount     int64     `json:"likes_count"`
	VideoCount     int64     `json:"video_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// VideoSnapshot is one point of a video's metric history.
type VideoSnapshot struct {
	ID           int64     `json:"id"`
	VideoID      string    `json:"video_id"`
	DiggCount    int64     `json:"digg_count"`
	ShareCount   int64     `json:"share_count"`
	CommentCount int64     `json:"comment_count"`
	PlayCount    int64     `json:"play_count"`
	CollectCount int64     `json:"collect_count"`
	CrawledAt    time.Time `json:"crawled_at"`
}

// Page is one decoded response of the listing endpoint.
type Page struct {
	Items     []Video
	Skipped   int
	Cursor    int64
	HasCursor bool
	HasMore   bool
}

// Budget bounds the work of one CrawlUserVideos call.
type Budget struct {
	MaxItems int
	PageSize int
}

func (b Budget) pageSize() int {
	if b.PageSize <= 0 {
		return DefaultPageSize
	}
	return b.PageSize
}

// Param is one query parameter.
type Param struct {
	Key   string
	Value string
}

// Query is an ordered parameter list. Order is preserved on encoding because
// the request signature covers the literal URL.
type Query []Param

// Encode renders the query as key=value pairs joined by '&'.
func (q Query) Encode() string {
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// Request is one outbound call made through a Fetcher.
type Request struct {
	// Endpoint labels the call in logs and metrics.
	Endpoint string
	URL      string
	Query    Query
	Sign     bool
}

// TaskType selects what a monitor task crawls.
type TaskType string

// Monitor task types.
const (
	TaskVideo      TaskType = "video"
	TaskUser       TaskType = "user"
	TaskUserVideos TaskType = "user_videos"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskVideo, TaskUser, TaskUserVideos:
		return true
	default:
		return false
	}
}

// Run status values written to tasks and crawl logs.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// MonitorTask is a persisted instruction to re-crawl a target periodically.
type MonitorTask struct {
	ID              int64      `json:"id"`
	Type            TaskType   `json:"task_type"`
	TargetID        string     `json:"target_id"`
	Name            string     `json:"name"`
	IntervalSeconds int        `json:"interval"`
	Enabled         bool       `json:"enabled"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	LastStatus      string     `json:"last_status,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ShareTarget is what a share link points at. Exactly one of VideoID and
// SecUID is set.
type ShareTarget struct {
	ResolvedURL string `json:"resolved_url"`
	VideoID     string `json:"video_id,omitempty"`
	SecUID      string `json:"sec_uid,omitempty"`
}

// DefaultTaskInterval is the re-crawl interval of a task created without one.
const DefaultTaskInterval = 300

// NewMonitorTask returns an enabled task. The name defaults to the target id
// and a non-positive interval to DefaultTaskInterval.
func NewMonitorTask(taskType TaskType, targetID, name string, intervalSeconds int) MonitorTask {
	if name == "" {
		name = targetID
	}
	if intervalSeconds <= 0 {
		intervalSeconds = DefaultTaskInterval
	}
	return MonitorTask{
		Type:            taskType,
		TargetID:        targetID,
		Name:            name,
		IntervalSeconds: intervalSeconds,
		Enabled:         true,
	}
}

// Due reports whether the task should run at now.
func (t MonitorTask) Due(now time.Time) bool {
	if !t.Enabled {
		return false
	}
	if t.LastRun == nil {
		return true
	}
	return now.Sub(*t.LastRun) >= time.Duration(t.IntervalSeconds)*time.Second
}

// CrawlLog is an audit row for one crawl attempt.
type CrawlLog struct {
	ID         int64     `json:"id"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// CrawlEvent is published after every scheduled task run.
type CrawlEvent struct {
	TaskID     int64     `json:"task_id"`
	TaskType   TaskType  `json:"task_type"`
	TargetID   string    `json:"target_id"`
	Status     string    `json:"status"`
	Upserted   int       `json:"upserted"`
	FinishedAt time.Time `json:"finished_at"`
}
