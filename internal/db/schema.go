package db

import "context"

const schema = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS posts (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	caption       TEXT NOT NULL DEFAULT '',
	image_url     TEXT NOT NULL DEFAULT '',
	location      geography(Point, 4326),
	location_name TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_posts_location ON posts USING GIST (location);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts (created_at);
CREATE INDEX IF NOT EXISTS idx_posts_user ON posts (user_id);

CREATE TABLE IF NOT EXISTS shared_albums (
	id            TEXT PRIMARY KEY,
	creator_id    TEXT NOT NULL,
	location      geography(Point, 4326) NOT NULL,
	location_name TEXT NOT NULL,
	start_time    TIMESTAMPTZ NOT NULL,
	end_time      TIMESTAMPTZ NOT NULL,
	members       TEXT[] NOT NULL,
	post_ids      TEXT[] NOT NULL,
	privacy       TEXT NOT NULL DEFAULT 'public' CHECK (privacy IN ('public', 'private')),
	metadata      JSONB NOT NULL DEFAULT '{}'::jsonb,
	version       BIGINT NOT NULL DEFAULT 1,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (cardinality(post_ids) >= 2),
	CHECK (start_time <= end_time)
);

CREATE INDEX IF NOT EXISTS idx_shared_albums_location ON shared_albums USING GIST (location);
CREATE INDEX IF NOT EXISTS idx_shared_albums_span ON shared_albums (start_time, end_time);
CREATE INDEX IF NOT EXISTS idx_shared_albums_post_ids ON shared_albums USING GIN (post_ids);

CREATE TABLE IF NOT EXISTS album_redirects (
	from_id    TEXT PRIMARY KEY,
	to_id      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the tables and indexes the stores rely on. Idempotent.
func Migrate(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, schema)
	return err
}
