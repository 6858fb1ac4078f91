package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id      TEXT NOT NULL UNIQUE,
	description   TEXT NOT NULL DEFAULT '',
	create_time   INTEGER NOT NULL DEFAULT 0,
	digg_count    INTEGER NOT NULL DEFAULT 0,
	share_count   INTEGER NOT NULL DEFAULT 0,
	comment_count INTEGER NOT NULL DEFAULT 0,
	play_count    INTEGER NOT NULL DEFAULT 0,
	collect_count INTEGER NOT NULL DEFAULT 0,
	author_id     TEXT NOT NULL DEFAULT '',
	author_name   TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS videos_author_id_idx ON videos (author_id);

CREATE TABLE IF NOT EXISTS users (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	sec_uid         TEXT NOT NULL UNIQUE,
	username        TEXT NOT NULL DEFAULT '',
	nickname        TEXT NOT NULL DEFAULT '',
	follower_count  INTEGER NOT NULL DEFAULT 0,
	following_count INTEGER NOT NULL DEFAULT 0,
	likes_count     INTEGER NOT NULL DEFAULT 0,
	video_count     INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS users_username_idx ON users (username);

CREATE TABLE IF NOT EXISTS video_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id      TEXT NOT NULL,
	digg_count    INTEGER NOT NULL DEFAULT 0,
	share_count   INTEGER NOT NULL DEFAULT 0,
	comment_count INTEGER NOT NULL DEFAULT 0,
	play_count    INTEGER NOT NULL DEFAULT 0,
	collect_count INTEGER NOT NULL DEFAULT 0,
	crawled_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS video_history_video_id_idx ON video_history (video_id);

CREATE TABLE IF NOT EXISTS crawl_logs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	target_type TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	status      TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS monitor_tasks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	task_type   TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	interval_seconds INTEGER NOT NULL DEFAULT 300,
	enabled     INTEGER NOT NULL DEFAULT 1,
	last_run    TEXT,
	last_status TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`
