package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionStore keeps the latest snapshot of each session as a JSONB
// document, with the fields used for listing pulled out into columns.
type SessionStore struct {
	db *pgxpool.Pool
}

var _ domain.SessionStore = (*SessionStore)(nil)

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Save(ctx context.Context, sess *domain.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO refinement_sessions (id, status, query, final_confidence, document, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			final_confidence = EXCLUDED.final_confidence,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at`,
		sess.ID, string(sess.Status), sess.Query, sess.FinalConfidence, doc, sess.CreatedAt, sess.UpdatedAt,
	)
	return err
}

func (s *SessionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	var doc []byte
	err := s.db.QueryRow(ctx,
		`SELECT document FROM refinement_sessions WHERE id = $1`,
		id,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	sess := &domain.Session{}
	if err := json.Unmarshal(doc, sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return sess, nil
}
