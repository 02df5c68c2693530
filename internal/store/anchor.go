package store

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// AnchorStore persists memory anchors with their content fingerprint so
// similar anchors can be found by cosine distance.
type AnchorStore struct {
	db *pgxpool.Pool
}

var _ domain.AnchorStore = (*AnchorStore)(nil)

func NewAnchorStore(db *pgxpool.Pool) *AnchorStore {
	return &AnchorStore{db: db}
}

// SaveBatch inserts anchors in one round trip. Keys already stored are left
// untouched.
func (s *AnchorStore) SaveBatch(ctx context.Context, anchors []domain.AnchorRecord) error {
	if len(anchors) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range anchors {
		var fingerprint *pgvector.Vector
		if len(a.Fingerprint) == FingerprintDims {
			v := pgvector.NewVector(a.Fingerprint)
			fingerprint = &v
		}
		batch.Queue(
			`INSERT INTO memory_anchors (key, kind, session_id, fingerprint)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (key) DO NOTHING`,
			a.Key, a.Kind, a.SessionID, fingerprint,
		)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for i := range anchors {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save anchor %d: %w", i, err)
		}
	}
	return nil
}

// LoadRecent returns up to limit keys, newest first.
func (s *AnchorStore) LoadRecent(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT key FROM memory_anchors ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// FindSimilar returns the keys closest to fingerprint by cosine distance.
func (s *AnchorStore) FindSimilar(ctx context.Context, fingerprint []float32, limit int) ([]string, error) {
	if len(fingerprint) != FingerprintDims {
		return nil, fmt.Errorf("fingerprint has %d dimensions, want %d", len(fingerprint), FingerprintDims)
	}
	rows, err := s.db.Query(ctx,
		`SELECT key FROM memory_anchors
		 WHERE fingerprint IS NOT NULL
		 ORDER BY fingerprint <=> $1
		 LIMIT $2`,
		pgvector.NewVector(fingerprint), limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
