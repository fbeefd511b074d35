package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectDB opens a pool against connStr and pings it.
func ConnectDB(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS lobbies (
	room_class           TEXT PRIMARY KEY,
	seated_players       JSONB NOT NULL DEFAULT '[]',
	active_game_id       TEXT,
	countdown            INTEGER,
	countdown_started_at TIMESTAMPTZ,
	game_active          BOOLEAN NOT NULL DEFAULT FALSE,
	game_settings        JSONB,
	random_seed          BIGINT,
	game_start_time      TIMESTAMPTZ,
	last_updated         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	version              BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS game_launches (
	game_id       TEXT PRIMARY KEY,
	room_class    TEXT NOT NULL,
	players       JSONB NOT NULL,
	game_settings JSONB NOT NULL,
	random_seed   BIGINT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS game_launches_room_class_idx ON game_launches (room_class, started_at DESC);
`

// Migrate creates the tables this service needs if they are missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
