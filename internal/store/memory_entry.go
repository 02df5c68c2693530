package store

import (
	"context"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultEntryLimit = 500

// MemoryEntryStore is the Postgres audit trail.
type MemoryEntryStore struct {
	db *pgxpool.Pool
}

var _ domain.MemoryEntryStore = (*MemoryEntryStore)(nil)

func NewMemoryEntryStore(db *pgxpool.Pool) *MemoryEntryStore {
	return &MemoryEntryStore{db: db}
}

func (s *MemoryEntryStore) AppendEntry(ctx context.Context, e *domain.MemoryEntry) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO memory_entries (session_id, entry_type, pass_num, layer_num, content, confidence)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		e.SessionID, string(e.EntryType), e.PassNum, e.LayerNum, e.Content, e.Confidence,
	).Scan(&e.ID, &e.CreatedAt)
}

// ListBySession returns the entries of a session in write order.
func (s *MemoryEntryStore) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.MemoryEntry, error) {
	if limit <= 0 {
		limit = defaultEntryLimit
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, entry_type, pass_num, layer_num, content, confidence, created_at
		 FROM memory_entries WHERE session_id = $1
		 ORDER BY id ASC LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.MemoryEntry
	for rows.Next() {
		var e domain.MemoryEntry
		var entryType string
		if err := rows.Scan(&e.ID, &e.SessionID, &entryType, &e.PassNum, &e.LayerNum, &e.Content, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EntryType = domain.EntryType(entryType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
