package persona

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/refinery/internal/domain"
)

// MockSource is a configurable persona source for testing. Responses
// overrides the answer for a role, Errors fails a role, and Confidence is used
// for every other role. Role steps call it concurrently, so all state is
// guarded.
type MockSource struct {
	mu sync.Mutex

	Responses  map[string]*domain.RoleResponse
	Errors     map[string]error
	Confidence float64
	ExpertList []domain.Persona

	// Call tracking for assertions
	RespondCalls []string
}

var _ domain.PersonaSource = (*MockSource)(nil)

func NewMockSource() *MockSource {
	return &MockSource{
		Responses:  make(map[string]*domain.RoleResponse),
		Errors:     make(map[string]error),
		Confidence: 0.9,
	}
}

func (m *MockSource) Respond(ctx context.Context, role, query string, hints []string) (*domain.RoleResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RespondCalls = append(m.RespondCalls, role)

	if err := m.Errors[role]; err != nil {
		return nil, err
	}
	if r, ok := m.Responses[role]; ok {
		cp := *r
		cp.Beliefs = append([]domain.BeliefDraft(nil), r.Beliefs...)
		cp.Flags = append([]string(nil), r.Flags...)
		return &cp, nil
	}
	content := role + " view on " + query
	return &domain.RoleResponse{
		Role:       role,
		Content:    content,
		Confidence: m.Confidence,
		Beliefs:    []domain.BeliefDraft{{Content: content, Confidence: m.Confidence}},
	}, nil
}

func (m *MockSource) Experts() []domain.Persona {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Persona(nil), m.ExpertList...)
}

// Calls returns a copy of the roles requested so far.
func (m *MockSource) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.RespondCalls...)
}
