package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS connection_status (
		id                 UUID PRIMARY KEY,
		session_id         UUID NOT NULL,
		instance           TEXT NOT NULL,
		state              TEXT NOT NULL,
		connected          BOOLEAN NOT NULL,
		reconnect_attempts INTEGER NOT NULL,
		error_kind         TEXT,
		error              TEXT,
		last_activity      TIMESTAMPTZ,
		recorded_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS connection_status_session_idx
		ON connection_status (session_id, recorded_at)`,
}

// EnsureSchema creates the journal table and index if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
