package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/google/uuid"
)

// InMemoryEntryLog is a process-local audit trail.
type InMemoryEntryLog struct {
	mu      sync.RWMutex
	nextID  int64
	entries []domain.MemoryEntry
}

var _ domain.MemoryEntryStore = (*InMemoryEntryLog)(nil)

func NewInMemoryEntryLog() *InMemoryEntryLog {
	return &InMemoryEntryLog{}
}

func (l *InMemoryEntryLog) AppendEntry(_ context.Context, e *domain.MemoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	e.ID = l.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	l.entries = append(l.entries, *e)
	return nil
}

func (l *InMemoryEntryLog) ListBySession(_ context.Context, sessionID uuid.UUID, limit int) ([]domain.MemoryEntry, error) {
	if limit <= 0 {
		limit = defaultEntryLimit
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.MemoryEntry
	for _, e := range l.entries {
		if e.SessionID != sessionID {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored entries.
func (l *InMemoryEntryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// InMemorySessionStore keeps session snapshots in a map.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.Session
}

var _ domain.SessionStore = (*InMemorySessionStore)(nil)

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[uuid.UUID]*domain.Session)}
}

func (s *InMemorySessionStore) Save(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Snapshot()
	return nil
}

func (s *InMemorySessionStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Snapshot(), nil
}

// InMemoryAnchorStore keeps anchors in insertion order and answers
// similarity queries by brute-force cosine similarity.
type InMemoryAnchorStore struct {
	mu      sync.RWMutex
	index   map[string]int
	anchors []domain.AnchorRecord
}

var _ domain.AnchorStore = (*InMemoryAnchorStore)(nil)

func NewInMemoryAnchorStore() *InMemoryAnchorStore {
	return &InMemoryAnchorStore{index: make(map[string]int)}
}

func (s *InMemoryAnchorStore) SaveBatch(_ context.Context, anchors []domain.AnchorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range anchors {
		if _, ok := s.index[a.Key]; ok || a.Key == "" {
			continue
		}
		a.Fingerprint = append([]float32(nil), a.Fingerprint...)
		s.index[a.Key] = len(s.anchors)
		s.anchors = append(s.anchors, a)
	}
	return nil
}

func (s *InMemoryAnchorStore) LoadRecent(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for i := len(s.anchors) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.anchors[i].Key)
	}
	return out, nil
}

func (s *InMemoryAnchorStore) FindSimilar(_ context.Context, fingerprint []float32, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		key   string
		score float64
		pos   int
	}
	var candidates []scored
	for i, a := range s.anchors {
		if len(a.Fingerprint) != len(fingerprint) {
			continue
		}
		candidates = append(candidates, scored{key: a.Key, score: cosine(a.Fingerprint, fingerprint), pos: i})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].pos < candidates[j].pos
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.key
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
