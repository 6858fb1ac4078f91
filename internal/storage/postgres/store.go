// Package postgres provides a Postgres-backed crawler.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store implements crawler.Store on Postgres.
type Store struct {
	pool  pool
	clock crawler.Clock
}

// New connects to Postgres and creates the schema.
func New(ctx context.Context, cfg Config, clock crawler.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, clock)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, clock crawler.Clock) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		clock = utcClock{}
	}
	return &Store{pool: p, clock: clock}, nil
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

const upsertVideoSQL = `
INSERT INTO videos (
	video_id, description, create_time, digg_count, share_count, comment_count,
	play_count, collect_count, author_id, author_name, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
ON CONFLICT (video_id) DO UPDATE SET
	description = EXCLUDED.description,
	create_time = EXCLUDED.create_time,
	digg_count = EXCLUDED.digg_count,
	share_count = EXCLUDED.share_count,
	comment_count = EXCLUDED.comment_count,
	play_count = EXCLUDED.play_count,
	collect_count = EXCLUDED.collect_count,
	author_id = EXCLUDED.author_id,
	author_name = EXCLUDED.author_name,
	updated_at = EXCLUDED.updated_at`

const insertHistorySQL = `
INSERT INTO video_history (
	video_id, digg_count, share_count, comment_count, play_count, collect_count, crawled_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)`

// UpsertVideo creates or replaces a video and appends a history row in one
// transaction.
func (s *Store) UpsertVideo(ctx context.Context, video crawler.Video) error {
	if video.VideoID == "" {
		return fmt.Errorf("video id is required")
	}
	now := s.clock.Now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert video: %w", err)
	}
	if _, err := tx.Exec(ctx, upsertVideoSQL,
		video.VideoID, video.Description, video.CreateTime, video.DiggCount, video.ShareCount,
		video.CommentCount, video.PlayCount, video.CollectCount, video.AuthorID, video.AuthorName, now,
	); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("upsert video: %w", err)
	}
	snap := video.Snapshot(now)
	if _, err := tx.Exec(ctx, insertHistorySQL,
		snap.VideoID, snap.DiggCount, snap.ShareCount, snap.CommentCount, snap.PlayCount, snap.CollectCount, snap.CrawledAt,
	); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("insert video history: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert video: %w", err)
	}
	return nil
}

const upsertUserSQL = `
INSERT INTO users (
	sec_uid, username, nickname, follower_count, following_count, likes_count,
	video_count, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
ON CONFLICT (sec_uid) DO UPDATE SET
	username = EXCLUDED.username,
	nickname = EXCLUDED.nickname,
	follower_count = EXCLUDED.follower_count,
	following_count = EXCLUDED.following_count,
	likes_count = EXCLUDED.likes_count,
	video_count = EXCLUDED.video_count,
	updated_at = EXCLUDED.updated_at`

// UpsertUser creates or replaces a user.
func (s *Store) UpsertUser(ctx context.Context, user crawler.User) error {
	if user.SecUID == "" {
		return fmt.Errorf("sec_uid is required")
	}
	if _, err := s.pool.Exec(ctx, upsertUserSQL,
		user.SecUID, user.Username, user.Nickname, user.FollowerCount, user.FollowingCount,
		user.LikesCount, user.VideoCount, s.clock.Now(),
	); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

const videoColumns = `video_id, description, create_time, digg_count, share_count, comment_count,
	play_count, collect_count, author_id, author_name, created_at, updated_at`

func scanVideo(row pgx.Row) (crawler.Video, error) {
	var v crawler.Video
	err := row.Scan(
		&v.VideoID, &v.Description, &v.CreateTime, &v.DiggCount, &v.ShareCount, &v.CommentCount,
		&v.PlayCount, &v.CollectCount, &v.AuthorID, &v.AuthorName, &v.CreatedAt, &v.UpdatedAt,
	)
	return v, err
}

// GetVideo returns one video or crawler.ErrNotFound.
func (s *Store) GetVideo(ctx context.Context, videoID string) (crawler.Video, error) {
	v, err := scanVideo(s.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE video_id = $1`, videoID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Video{}, crawler.ErrNotFound
		}
		return crawler.Video{}, fmt.Errorf("get video: %w", err)
	}
	return v, nil
}

// ListVideos returns videos in insertion order.
func (s *Store) ListVideos(ctx context.Context, limit, offset int) ([]crawler.Video, error) {
	return s.queryVideos(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY id LIMIT $1 OFFSET $2`, limitArg(limit), offset)
}

// TopVideos returns the most played videos first.
func (s *Store) TopVideos(ctx context.Context, limit int) ([]crawler.Video, error) {
	return s.queryVideos(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY play_count DESC, id LIMIT $1`, limitArg(limit))
}

// VideosByAuthor returns every video of one author.
func (s *Store) VideosByAuthor(ctx context.Context, authorID string) ([]crawler.Video, error) {
	return s.queryVideos(ctx, `SELECT `+videoColumns+` FROM videos WHERE author_id = $1 ORDER BY id`, authorID)
}

func (s *Store) queryVideos(ctx context.Context, query string, args ...any) ([]crawler.Video, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

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
	rows, err := s.pool.Query(ctx, `
SELECT id, video_id, digg_count, share_count, comment_count, play_count, collect_count, crawled_at
FROM video_history WHERE video_id = $1 ORDER BY crawled_at DESC, id DESC LIMIT $2`, videoID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query video history: %w", err)
	}
	defer rows.Close()

	history := []crawler.VideoSnapshot{}
	for rows.Next() {
		var h crawler.VideoSnapshot
		if err := rows.Scan(
			&h.ID, &h.VideoID, &h.DiggCount, &h.ShareCount, &h.CommentCount, &h.PlayCount, &h.CollectCount, &h.CrawledAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
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

func scanUser(row pgx.Row) (crawler.User, error) {
	var u crawler.User
	err := row.Scan(
		&u.SecUID, &u.Username, &u.Nickname, &u.FollowerCount, &u.FollowingCount, &u.LikesCount,
		&u.VideoCount, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

// GetUser returns one user or crawler.ErrNotFound.
func (s *Store) GetUser(ctx context.Context, secUID string) (crawler.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE sec_uid = $1`, secUID)
}

// GetUserByUsername returns the first user with username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (crawler.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1 ORDER BY id LIMIT 1`, username)
}

func (s *Store) getUser(ctx context.Context, query, arg string) (crawler.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.User{}, crawler.ErrNotFound
		}
		return crawler.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers returns users in insertion order.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]crawler.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limitArg(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

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

// limitArg maps a non-positive limit to NULL, which Postgres reads as ALL.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

type utcClock struct{}

func (utcClock) Now() time.Time {
	return time.Now().UTC()
}

var _ crawler.Store = (*Store)(nil)
