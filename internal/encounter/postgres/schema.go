package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the encounter tables and indexes if they do not exist.
// It is idempotent and runs on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS encounters (
			id         TEXT PRIMARY KEY,
			patient_id TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			closed_at  TIMESTAMPTZ,
			doc        JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS encounters_open_idx
			ON encounters (started_at) WHERE closed_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS encounters_patient_idx
			ON encounters (patient_id)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate encounters: %w", err)
		}
	}
	return nil
}
