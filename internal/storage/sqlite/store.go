// Package sqlite provides a crawler.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements crawler.Store on SQLite.
type Store struct {
	db    *sql.DB
	clock crawler.Clock
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string, clock crawler.Clock) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database.path is required")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; also keeps :memory: on one connection
	if clock == nil {
		clock = utcClock{}
	}
	s := &Store{db: db, clock: clock}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// limitArg maps a non-positive limit to -1, which SQLite reads as no limit.
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// UpsertVideo creates or replaces a video and appends a history row in one
// transaction.
func (s *Store) UpsertVideo(ctx context.Context, video crawler.Video) error {
	if video.VideoID == "" {
		return fmt.Errorf("video id is required")
	}
	now := formatTime(s.clock.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert video: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO videos (
	video_id, description, create_time, digg_count, share_count, comment_count,
	play_count, collect_count, author_id, author_name, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (video_id) DO UPDATE SET
	description = excluded.description,
	create_time = excluded.create_time,
	digg_count = excluded.digg_count,
	share_count = excluded.share_count,
	comment_count = excluded.comment_count,
	play_count = excluded.play_count,
	collect_count = excluded.collect_count,
	author_id = excluded.author_id,
	author_name = excluded.author_name,
	updated_at = excluded.updated_at`,
		video.VideoID, video.Description, video.CreateTime, video.DiggCount, video.ShareCount,
		video.CommentCount, video.PlayCount, video.CollectCount, video.AuthorID, video.AuthorName, now, now,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert video: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO video_history (
	video_id, digg_count, share_count, comment_count, play_count, collect_count, crawled_at
) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		video.VideoID, video.DiggCount, video.ShareCount, video.CommentCount, video.PlayCount, video.CollectCount, now,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert video history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert video: %w", err)
	}
	return nil
}

// UpsertUser creates or replaces a user.
func (s *Store) UpsertUser(ctx context.Context, user crawler.User) error {
	if user.SecUID == "" {
		return fmt.Errorf("sec_uid is required")
	}
	now := formatTime(s.clock.Now())
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO users (
	sec_uid, username, nickname, follower_count, following_count, likes_count,
	video_count, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (sec_uid) DO UPDATE SET
	username = excluded.username,
	nickname = excluded.nickname,
	follower_count = excluded.follower_count,
	following_count = excluded.following_count,
	likes_count = excluded.likes_count,
	video_count = excluded.video_count,
	updated_at = excluded.updated_at`,
		user.SecUID, user.Username, user.Nickname, user.FollowerCount, user.FollowingCount,
		user.LikesCount, user.VideoCount, now, now,
	); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

const videoColumns = `video_id, description, create_time, digg_count, share_count, comment_count,
	play_count, collect_count, author_id, author_name, created_at, updated_at`

func scanVideo(row scanner) (crawler.Video, error) {
	var (
		v                crawler.Video
		created, updated string
	)
	if err := row.Scan(
		&v.VideoID, &v.Description, &v.CreateTime, &v.DiggCount, &v.ShareCount, &v.CommentCount,
		&v.PlayCount, &v.CollectCount, &v.AuthorID, &v.AuthorName, &created, &updated,
	); err != nil {
		return crawler.Video{}, err
	}
	var err error
	if v.CreatedAt, err = parseTime(created); err != nil {
		return crawler.Video{}, err
	}
	if v.UpdatedAt, err = parseTime(updated); err != nil {
		return crawler.Video{}, err
	}
	return v, nil
}

// GetVideo returns one video or crawler.ErrNotFound.
func (s *Store) GetVideo(ctx context.Context, videoID string) (crawler.Video, error) {
	v, err := scanVideo(s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE video_id = ?`, videoID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawler.Video{}, crawler.ErrNotFound
		}
		return crawler.Video{}, fmt.Errorf("get video: %w", err)
	}
	return v, nil
}

// ListVideos returns videos in insertion order.
func (s *Store) ListVideos(ctx context.Context, limit, offset int) ([]crawler.Video, error) {
	return s.queryVideos(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY id LIMIT ? OFFSET ?`, limitArg(limit), offset)
}

// TopVideos returns the most played videos first.
func (s *Store) TopVideos(ctx context.Context, limit int) ([]crawler.Video, error) {
	return s.queryVideos(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY play_count DESC, id LIMIT ?`, limitArg(limit))
}

// VideosByAuthor returns every video of one author.
func (s *Store) VideosByAuthor(ctx context.Context, authorID string) ([]crawler.Video, error) {
	return s.queryVideos(ctx, `SELECT `+videoColumns+` FROM videos WHERE author_id = ? ORDER BY id`, authorID)
}

func (s *Store) queryVideos(ctx context.Context, query string, args ...any) ([]crawler.Video, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	videos := []crawler.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video row: %w", err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

// VideoHistory returns the newest snapshots of one video first.
func (s *Store) VideoHistory(ctx context.Context, videoID string, limit int) ([]crawler.VideoSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, video_id, digg_count, share_count, comment_count, play_count, collect_count, crawled_at
FROM video_history WHERE video_id = ? ORDER BY crawled_at DESC, id DESC LIMIT ?`, videoID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query video history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	history := []crawler.VideoSnapshot{}
	for rows.Next() {
		var (
			h       crawler.VideoSnapshot
			crawled string
		)
		if err := rows.Scan(
			&h.ID, &h.VideoID, &h.DiggCount, &h.ShareCount, &h.CommentCount, &h.PlayCount, &h.CollectCount, &crawled,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if h.CrawledAt, err = parseTime(crawled); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}

const userColumns = `sec_uid, username, nickname, follower_count, following_count, likes_count,
	video_count, created_at, updated_at`

func scanUser(row scanner) (crawler.User, error) {
	var (
		u                crawler.User
		created, updated string
	)
	if err := row.Scan(
		&u.SecUID, &u.Username, &u.Nickname, &u.FollowerCount, &u.FollowingCount, &u.LikesCount,
		&u.VideoCount, &created, &updated,
	); err != nil {
		return crawler.User{}, err
	}
	var err error
	if u.CreatedAt, err = parseTime(created); err != nil {
		return crawler.User{}, err
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return crawler.User{}, err
	}
	return u, nil
}

// GetUser returns one user or crawler.ErrNotFound.
func (s *Store) GetUser(ctx context.Context, secUID string) (crawler.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE sec_uid = ?`, secUID)
}

// GetUserByUsername returns the first user with username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (crawler.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ? ORDER BY id LIMIT 1`, username)
}

func (s *Store) getUser(ctx context.Context, query, arg string) (crawler.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawler.User{}, crawler.ErrNotFound
		}
		return crawler.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers returns users in insertion order.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]crawler.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT ? OFFSET ?`, limitArg(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := []crawler.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

type utcClock struct{}

func (utcClock) Now() time.Time {
	return time.Now().UTC()
}

var _ crawler.Store = (*Store)(nil)
