// Package layer implements the escalation layers 4-10 that the gatekeeper
// activates on top of the base workflow.
package layer

import (
	"context"
	"math/rand/v2"

	"github.com/Harshitk-cp/refinery/internal/domain"
)

// Strategy is one escalation layer. Process must not mutate rc; it returns a
// derived context together with a report for the pass record.
type Strategy interface {
	ID() domain.LayerID
	Name() string
	Process(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, *domain.LayerReport, error)
}

// Flags raised by layers and read back by the gatekeeper on the next pass.
const (
	FlagAmbiguityEscalation = "ambiguity_escalation"
	FlagBeliefContradiction = "belief_contradiction"
	FlagEmergence           = "emergence"
	FlagGoalConflict        = "goal_conflict"
)

// passRand returns the deterministic generator for one layer invocation.
func passRand(rc *domain.ReasoningContext, id domain.LayerID) *rand.Rand {
	return rand.New(rand.NewPCG(rc.Seed, uint64(rc.PassNumber)<<8|uint64(id)))
}

func newReport(s Strategy, status domain.LayerStatus, confidence float64) *domain.LayerReport {
	return &domain.LayerReport{
		Layer:      s.ID(),
		Name:       s.Name(),
		Status:     status,
		Confidence: confidence,
		Metrics:    make(map[string]float64),
	}
}

// Passthrough covers layers that only widen the role set already merged by
// the workflow. It records the current confidence and leaves the context
// unchanged apart from the version bump.
type Passthrough struct {
	id   domain.LayerID
	name string
}

func NewPassthrough(id domain.LayerID, name string) *Passthrough {
	return &Passthrough{id: id, name: name}
}

func (p *Passthrough) ID() domain.LayerID { return p.id }
func (p *Passthrough) Name() string { return p.name }

func (p *Passthrough) Process(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, *domain.LayerReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	next := rc.Clone()
	rep := newReport(p, domain.LayerCompleted, rc.Confidence)
	rep.Metrics["roles"] = float64(len(rc.Roles))
	return next, rep, nil
}

// DefaultPassthroughs returns the simulated layers 4, 5 and 6.
func DefaultPassthroughs() []Strategy {
	return []Strategy{
		NewPassthrough(domain.LayerMultiRole, "multi_role"),
		NewPassthrough(domain.LayerPerspective, "perspective"),
		NewPassthrough(domain.LayerSectorDeepDive, "sector_deep_dive"),
	}
}

// Set indexes strategies by layer.
type Set map[domain.LayerID]Strategy

func NewSet(strategies ...Strategy) Set {
	s := make(Set, len(strategies))
	for _, st := range strategies {
		s[st.ID()] = st
	}
	return s
}
