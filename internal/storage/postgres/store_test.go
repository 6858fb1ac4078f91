package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Unix(1700000000, 0).UTC()

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, fixedClock{t: testNow})
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, nil)
	require.Error(t, err)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{}, nil)
	require.Error(t, err)
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS videos").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVideoWritesHistoryInTransaction(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	video := crawler.Video{
		VideoID:    "7300000000000000000",
		DiggCount:  10,
		PlayCount:  400,
		AuthorID:   "42",
		AuthorName: "alice",
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO videos").
		WithArgs(video.VideoID, "", int64(0), int64(10), int64(0), int64(0), int64(400), int64(0), "42", "alice", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO video_history").
		WithArgs(video.VideoID, int64(10), int64(0), int64(0), int64(400), int64(0), testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.UpsertVideo(context.Background(), video))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVideoRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO videos").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := store.UpsertVideo(context.Background(), crawler.Video{VideoID: "1"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, store.UpsertVideo(context.Background(), crawler.Video{}))
}

func TestUpsertUser(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	user := crawler.User{SecUID: "MS4w", Username: "alice", FollowerCount: 3}
	mock.ExpectExec("INSERT INTO users").
		WithArgs("MS4w", "alice", "", int64(3), int64(0), int64(0), int64(0), testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertUser(context.Background(), user))
	require.NoError(t, mock.ExpectationsWereMet())
}

func videoRow(id string, play int64) []any {
	return []any{id, "desc", int64(1), int64(2), int64(3), int64(4), play, int64(5), "42", "alice", testNow, testNow}
}

var videoCols = []string{
	"video_id", "description", "create_time", "digg_count", "share_count", "comment_count",
	"play_count", "collect_count", "author_id", "author_name", "created_at", "updated_at",
}

func TestGetVideo(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM videos WHERE video_id").
		WithArgs("1").
		WillReturnRows(mock.NewRows(videoCols).AddRow(videoRow("1", 100)...))
	mock.ExpectQuery("FROM videos WHERE video_id").
		WithArgs("2").
		WillReturnError(pgx.ErrNoRows)

	v, err := store.GetVideo(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), v.PlayCount)
	assert.Equal(t, "alice", v.AuthorName)

	_, err = store.GetVideo(context.Background(), "2")
	assert.ErrorIs(t, err, crawler.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAndTopVideos(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM videos ORDER BY id LIMIT").
		WithArgs(10, 20).
		WillReturnRows(mock.NewRows(videoCols).AddRow(videoRow("1", 1)...).AddRow(videoRow("2", 2)...))
	mock.ExpectQuery("ORDER BY play_count DESC").
		WithArgs(nil).
		WillReturnRows(mock.NewRows(videoCols))

	list, err := store.ListVideos(context.Background(), 10, 20)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	top, err := store.TopVideos(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, top)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVideoHistory(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cols := []string{"id", "video_id", "digg_count", "share_count", "comment_count", "play_count", "collect_count", "crawled_at"}
	mock.ExpectQuery("FROM video_history WHERE video_id").
		WithArgs("1", 5).
		WillReturnRows(mock.NewRows(cols).
			AddRow(int64(2), "1", int64(20), int64(0), int64(0), int64(200), int64(0), testNow).
			AddRow(int64(1), "1", int64(10), int64(0), int64(0), int64(100), int64(0), testNow.Add(-time.Hour)))

	history, err := store.VideoHistory(context.Background(), "1", 5)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(200), history[0].PlayCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersQueries(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cols := []string{"sec_uid", "username", "nickname", "follower_count", "following_count", "likes_count", "video_count", "created_at", "updated_at"}
	row := []any{"MS4w", "alice", "Alice", int64(1), int64(2), int64(3), int64(4), testNow, testNow}

	mock.ExpectQuery("FROM users WHERE username").
		WithArgs("alice").
		WillReturnRows(mock.NewRows(cols).AddRow(row...))
	mock.ExpectQuery("FROM users WHERE sec_uid").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM users ORDER BY id").
		WithArgs(50, 0).
		WillReturnRows(mock.NewRows(cols).AddRow(row...))

	u, err := store.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "MS4w", u.SecUID)

	_, err = store.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, crawler.ErrNotFound)

	users, err := store.ListUsers(context.Background(), 50, 0)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTasks(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	task := crawler.NewMonitorTask(crawler.TaskUserVideos, "MS4w", "", 0)

	mock.ExpectQuery("INSERT INTO monitor_tasks").
		WithArgs("user_videos", "MS4w", "MS4w", 300, true, testNow).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(7)))

	created, err := store.CreateTask(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, int64(7), created.ID)
	assert.Equal(t, testNow, created.CreatedAt)

	_, err = store.CreateTask(context.Background(), crawler.MonitorTask{Type: "nope"})
	require.Error(t, err)

	cols := []string{"id", "task_type", "target_id", "name", "interval_seconds", "enabled", "last_run", "last_status", "created_at", "updated_at"}
	status := crawler.StatusSuccess
	ran := testNow.Add(-time.Hour)
	mock.ExpectQuery("FROM monitor_tasks WHERE enabled").
		WillReturnRows(mock.NewRows(cols).
			AddRow(int64(7), "user_videos", "MS4w", "MS4w", 300, true, (*time.Time)(nil), (*string)(nil), testNow, testNow).
			AddRow(int64(8), "video", "1", "clip", 60, true, &ran, &status, testNow, testNow))

	active, err := store.ActiveTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, crawler.TaskUserVideos, active[0].Type)
	assert.Nil(t, active[0].LastRun)
	assert.Empty(t, active[0].LastStatus)
	require.NotNil(t, active[1].LastRun)
	assert.Equal(t, ran, *active[1].LastRun)
	assert.Equal(t, crawler.StatusSuccess, active[1].LastStatus)

	mock.ExpectExec("UPDATE monitor_tasks SET last_run").
		WithArgs(testNow, crawler.StatusFailed, testNow, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE monitor_tasks SET last_run").
		WithArgs(testNow, crawler.StatusFailed, testNow, int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("DELETE FROM monitor_tasks").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.UpdateLastRun(context.Background(), 7, testNow, crawler.StatusFailed))
	assert.ErrorIs(t, store.UpdateLastRun(context.Background(), 99, testNow, crawler.StatusFailed), crawler.ErrNotFound)
	require.NoError(t, store.DeleteTask(context.Background(), 7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlLogs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO crawl_logs").
		WithArgs("video", "1", "success", "", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM crawl_logs ORDER BY created_at DESC").
		WithArgs(10).
		WillReturnRows(mock.NewRows([]string{"id", "target_type", "target_id", "status", "message", "created_at"}).
			AddRow(int64(1), "video", "1", "success", "", testNow))

	require.NoError(t, store.AddLog(context.Background(), crawler.CrawlLog{TargetType: "video", TargetID: "1", Status: "success"}))
	logs, err := store.RecentLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "1", logs[0].TargetID)
	require.NoError(t, mock.ExpectationsWereMet())
}
