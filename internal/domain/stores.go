package domain

import (
	"context"

	"github.com/google/uuid"
)

// AuditSink receives an entry at every pipeline state transition. Entries are
// never read back by the pipeline.
type AuditSink interface {
	AppendEntry(ctx context.Context, e *MemoryEntry) error
}

// MemoryEntryStore is the queryable side of the audit trail.
type MemoryEntryStore interface {
	AuditSink
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]MemoryEntry, error)
}

// SessionStore persists session snapshots. It is optional; the in-process
// registry is authoritative while a session runs.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
}

// AnchorRecord is a memory anchor observed in a session.
type AnchorRecord struct {
	Key         string    `json:"key"`
	Kind        string    `json:"kind"`
	SessionID   string    `json:"session_id"`
	Fingerprint []float32 `json:"-"`
}

type AnchorStore interface {
	SaveBatch(ctx context.Context, anchors []AnchorRecord) error
	LoadRecent(ctx context.Context, limit int) ([]string, error)
	FindSimilar(ctx context.Context, fingerprint []float32, limit int) ([]string, error)
}

// AlgorithmInput is passed to a knowledge algorithm.
type AlgorithmInput struct {
	Query      string   `json:"query"`
	Keywords   []string `json:"keywords,omitempty"`
	Beliefs    []Belief `json:"beliefs,omitempty"`
	Goals      []Goal   `json:"goals,omitempty"`
	Confidence float64  `json:"confidence"`
	Entropy    float64  `json:"entropy"`
}

type AlgorithmStatus string

const (
	AlgorithmOK      AlgorithmStatus = "ok"
	AlgorithmSkipped AlgorithmStatus = "skipped"
	AlgorithmFailed  AlgorithmStatus = "failed"
)

// AlgorithmResult is what a knowledge algorithm returns.
type AlgorithmResult struct {
	AlgorithmID string          `json:"algorithm_id"`
	Output      map[string]any  `json:"output,omitempty"`
	Confidence  float64         `json:"confidence"`
	Status      AlgorithmStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
}

// Capability is a pluggable knowledge algorithm.
type Capability interface {
	Execute(ctx context.Context, layer LayerID, sessionID string, pass int, in AlgorithmInput) (AlgorithmResult, error)
}

// KnowledgeRegistry runs every registered capability for a layer.
type KnowledgeRegistry interface {
	Register(id string, c Capability) error
	Execute(ctx context.Context, layer LayerID, sessionID string, pass int, in AlgorithmInput) []AlgorithmResult
	IDs() []string
}

// BeliefDraft is a belief proposed by a persona before it is assigned an ID.
type BeliefDraft struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
	Reinforced bool    `json:"reinforced,omitempty"`
}

// RoleResponse is a persona's answer for one role.
type RoleResponse struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	Confidence float64       `json:"confidence"`
	Beliefs    []BeliefDraft `json:"beliefs"`
	Flags      []string      `json:"flags,omitempty"`
}

// PersonaSource supplies role responses and the expert catalog.
type PersonaSource interface {
	Respond(ctx context.Context, role, query string, hints []string) (*RoleResponse, error)
	Experts() []Persona
}

// AlertPublisher forwards containment events and emergence alerts.
type AlertPublisher interface {
	PublishContainment(ctx context.Context, e ContainmentEvent) error
	PublishEmergence(ctx context.Context, a EmergenceAlert) error
}

// SignalEstimator produces the gatekeeper signals for the first pass, before
// any pass has been scored.
type SignalEstimator interface {
	Estimate(query string, hints []string) Signals
}
