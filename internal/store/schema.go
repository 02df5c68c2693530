// Package store persists the audit trail, session snapshots and memory
// anchors. Postgres-backed stores use a pgx pool; the in-process variants in
// memory.go serve deployments without a database and tests.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FingerprintDims is the width of the anchor fingerprint column.
const FingerprintDims = 64

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS memory_entries (
		id          BIGSERIAL PRIMARY KEY,
		session_id  UUID NOT NULL,
		entry_type  TEXT NOT NULL,
		pass_num    INT NOT NULL,
		layer_num   INT NOT NULL,
		content     TEXT NOT NULL,
		confidence  DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS memory_entries_session_idx ON memory_entries (session_id, id)`,
	`CREATE TABLE IF NOT EXISTS refinement_sessions (
		id               UUID PRIMARY KEY,
		status           TEXT NOT NULL,
		query            TEXT NOT NULL,
		final_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		document         JSONB NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_anchors (
		key         TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		session_id  TEXT NOT NULL,
		fingerprint vector(%d),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, FingerprintDims),
	`CREATE INDEX IF NOT EXISTS memory_anchors_created_idx ON memory_anchors (created_at DESC)`,
}

// Migrate creates the tables used by the Postgres stores. It is idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
