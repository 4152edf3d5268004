package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; it bootstraps an empty database and is a no-op otherwise.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           VARCHAR(100) PRIMARY KEY,
	email        VARCHAR(70) UNIQUE,
	password     TEXT NOT NULL DEFAULT '',
	name         VARCHAR(70) NOT NULL,
	is_ephemeral BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS lobbies (
	id              VARCHAR(32) PRIMARY KEY,
	host_id         VARCHAR(100) NOT NULL,
	guessing_time   SMALLINT NOT NULL,
	started_at      TIMESTAMPTZ,
	finished_at     TIMESTAMPTZ,
	sequence        TEXT[] NOT NULL DEFAULT '{}',
	current_user_id VARCHAR(100),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS lobby_players (
	lobby_id   VARCHAR(32) NOT NULL REFERENCES lobbies (id) ON DELETE CASCADE,
	player_id  VARCHAR(100) NOT NULL,
	is_ready   BOOLEAN NOT NULL DEFAULT FALSE,
	guesses    TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	PRIMARY KEY (lobby_id, player_id)
);

CREATE TABLE IF NOT EXISTS contents (
	lobby_id   VARCHAR(32) NOT NULL REFERENCES lobbies (id) ON DELETE CASCADE,
	player_id  VARCHAR(100) NOT NULL,
	kind       VARCHAR(70) NOT NULL,
	payload    VARCHAR(255) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (lobby_id, player_id)
);

CREATE TABLE IF NOT EXISTS lobby_events (
	id         BIGSERIAL PRIMARY KEY,
	lobby_id   VARCHAR(32) NOT NULL,
	type       VARCHAR(40) NOT NULL,
	actor_id   VARCHAR(100),
	payload    JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS lobby_events_lobby_idx ON lobby_events (lobby_id, created_at);
`

// EnsureSchema creates any missing tables.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return wrapErr("ensure schema", err)
}
