package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS point_updates (
    id           UUID PRIMARY KEY,
    slot_id      UUID NOT NULL,
    points_total DOUBLE PRECISION NOT NULL,
    points_today DOUBLE PRECISION NOT NULL,
    received_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS point_updates_received_at_idx
    ON point_updates (received_at);
`

// Connect creates a connection pool for the history database and ensures
// the schema exists.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse history dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create history pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}

	return pool, nil
}
