package postgres

// schema creates the monitor tables when they are missing.
const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id            BIGSERIAL PRIMARY KEY,
	video_id      VARCHAR(64) NOT NULL UNIQUE,
	description   TEXT NOT NULL DEFAULT '',
	create_time   BIGINT NOT NULL DEFAULT 0,
	digg_count    BIGINT NOT NULL DEFAULT 0,
	share_count   BIGINT NOT NULL DEFAULT 0,
	comment_count BIGINT NOT NULL DEFAULT 0,
	play_count    BIGINT NOT NULL DEFAULT 0,
	collect_count BIGINT NOT NULL DEFAULT 0,
	author_id     VARCHAR(64) NOT NULL DEFAULT '',
	author_name   VARCHAR(128) NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS videos_author_id_idx ON videos (author_id);

CREATE TABLE IF NOT EXISTS users (
	id              BIGSERIAL PRIMARY KEY,
	sec_uid         VARCHAR(128) NOT NULL UNIQUE,
	username        VARCHAR(128) NOT NULL DEFAULT '',
	nickname        VARCHAR(256) NOT NULL DEFAULT '',
	follower_count  BIGINT NOT NULL DEFAULT 0,
	following_count BIGINT NOT NULL DEFAULT 0,
	likes_count     BIGINT NOT NULL DEFAULT 0,
	video_count     BIGINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS users_username_idx ON users (username);

CREATE TABLE IF NOT EXISTS video_history (
	id            BIGSERIAL PRIMARY KEY,
	video_id      VARCHAR(64) NOT NULL,
	digg_count    BIGINT NOT NULL DEFAULT 0,
	share_count   BIGINT NOT NULL DEFAULT 0,
	comment_count BIGINT NOT NULL DEFAULT 0,
	play_count    BIGINT NOT NULL DEFAULT 0,
	collect_count BIGINT NOT NULL DEFAULT 0,
	crawled_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS video_history_video_id_idx ON video_history (video_id, crawled_at DESC);

CREATE TABLE IF NOT EXISTS crawl_logs (
	id          BIGSERIAL PRIMARY KEY,
	target_type VARCHAR(32) NOT NULL,
	target_id   VARCHAR(128) NOT NULL,
	status      VARCHAR(32) NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS monitor_tasks (
	id          BIGSERIAL PRIMARY KEY,
	task_type   VARCHAR(32) NOT NULL,
	target_id   VARCHAR(128) NOT NULL,
	name        VARCHAR(256) NOT NULL DEFAULT '',
	interval_seconds INTEGER NOT NULL DEFAULT 300,
	enabled     BOOLEAN NOT NULL DEFAULT TRUE,
	last_run    TIMESTAMPTZ,
	last_status VARCHAR(32),
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
`
