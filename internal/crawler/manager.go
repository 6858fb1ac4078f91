package crawler

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/tiktok-monitor/internal/metrics"
)

// Record kinds used in logs and metrics.
const (
	KindVideo = "video"
	KindUser  = "user"
)

// Manager runs crawls and hands the results to a RecordStore.
type Manager struct {
	client *Client
	store  RecordStore
	logger *zap.Logger
}

// NewManager builds a Manager.
func NewManager(client *Client, store RecordStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client: client,
		store:  store,
		logger: logger,
	}
}

// Client exposes the underlying API client.
func (m *Manager) Client() *Client {
	return m.client
}

// CrawlVideo refreshes one video. It reports false when the detail was
// absent (upsert is not called) or could not be stored.
func (m *Manager) CrawlVideo(ctx context.Context, videoID string) bool {
	out := m.client.VideoDetail(ctx, videoID)
	video, ok := out.Get()
	if !ok {
		m.logger.Error("failed to get video info",
			zap.String("video_id", videoID),
			zap.String("reason", string(out.Reason())),
		)
		return false
	}
	if err := m.upsertVideo(ctx, video); err != nil {
		return false
	}
	m.logger.Info("crawled video", zap.String("video_id", videoID))
	return true
}

// CrawlUser refreshes one account.
func (m *Manager) CrawlUser(ctx context.Context, secUID string) bool {
	out := m.client.UserDetail(ctx, secUID)
	user, ok := out.Get()
	if !ok {
		m.logger.Error("failed to get user info",
			zap.String("sec_uid", secUID),
			zap.String("reason", string(out.Reason())),
		)
		return false
	}
	err := m.store.UpsertUser(ctx, user)
	metrics.ObserveUpsert(KindUser, err)
	if err != nil {
		m.logger.Error("upsert user failed", zap.String("sec_uid", secUID), zap.Error(err))
		return false
	}
	m.logger.Info("crawled user", zap.String("sec_uid", secUID))
	return true
}

// CrawlShareLink resolves a video share link and crawls the video.
func (m *Manager) CrawlShareLink(ctx context.Context, shareURL string) bool {
	out := m.client.ExtractVideoID(ctx, shareURL)
	videoID, ok := out.Get()
	if !ok {
		m.logger.Warn("share link has no video id",
			zap.String("url", shareURL),
			zap.String("reason", string(out.Reason())),
		)
		return false
	}
	return m.CrawlVideo(ctx, videoID)
}

// CrawlUserVideos walks an account's listing and upserts every video it
// sees, returning how many were handed to the store.
//
// The budget is checked only between pages: a page is always processed in
// full, so the result can exceed MaxItems by up to PageSize-1. Absent pages,
// a missing cursor and has_more=false end the walk, as does a page without
// items whose cursor does not move.
// Store failures are logged and still counted.
func (m *Manager) CrawlUserVideos(ctx context.Context, secUID string, budget Budget) int {
	pageSize := budget.pageSize()
	var (
		cursor int64
		count  int
		pages  int
	)

	for count < budget.MaxItems {
		out := m.client.UserVideosPage(ctx, secUID, pageSize, cursor)
		page, ok := out.Get()
		if !ok {
			m.logger.Info("listing stopped",
				zap.String("sec_uid", secUID),
				zap.Int("pages", pages),
				zap.String("reason", string(out.Reason())),
			)
			break
		}
		pages++
		metrics.ObservePage()
		if len(page.Items) == 0 && page.Skipped == 0 && (!page.HasCursor || page.Cursor == cursor) {
			break
		}

		for _, video := range page.Items {
			_ = m.upsertVideo(ctx, video)
			count++
		}
		if page.Skipped > 0 {
			m.logger.Debug("skipped listing items without id",
				zap.String("sec_uid", secUID),
				zap.Int("skipped", page.Skipped),
			)
		}

		if !page.HasCursor {
			break
		}
		cursor = page.Cursor
		if !page.HasMore {
			break
		}
	}

	m.logger.Info("crawled user videos",
		zap.String("sec_uid", secUID),
		zap.Int("count", count),
		zap.Int("pages", pages),
	)
	return count
}

func (m *Manager) upsertVideo(ctx context.Context, video Video) error {
	err := m.store.UpsertVideo(ctx, video)
	metrics.ObserveUpsert(KindVideo, err)
	if err != nil {
		m.logger.Error("upsert video failed", zap.String("video_id", video.VideoID), zap.Error(err))
	}
	return err
}
