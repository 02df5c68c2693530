package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"go.uber.org/zap"
)

// Flags read by the gatekeeper.
const (
	FlagMultiRole             = "multirole"
	FlagConfidenceDecreasing  = "confidence_decreasing"
	FlagConfidencePlateau     = "confidence_plateau"
	FlagConfidenceOscillation = "confidence_oscillation"
	FlagGoalConflict          = "goal_conflict"
	FlagAmbiguityEscalation   = "ambiguity_escalation"
	FlagBeliefContradiction   = "belief_contradiction"
	FlagEmergence             = "emergence"
	FlagHallucinationDrift    = "hallucination_drift"
)

const defaultDecisionLogSize = 256

// DecisionRecord is one gatekeeper evaluation kept for audit.
type DecisionRecord struct {
	At       time.Time           `json:"at"`
	Signals  domain.Signals      `json:"signals"`
	Decision domain.GateDecision `json:"decision"`
}

// Gatekeeper maps pass signals onto the set of layers to activate. Evaluate
// depends only on its input and the policy; the decision log is append-only
// and never consulted.
type Gatekeeper struct {
	policy GatekeeperPolicy
	logger *zap.Logger

	mu      sync.Mutex
	log     []DecisionRecord
	logSize int
}

func NewGatekeeper(policy GatekeeperPolicy, logger *zap.Logger) *Gatekeeper {
	return &Gatekeeper{
		policy:  policy.withDefaults(),
		logger:  logger,
		logSize: defaultDecisionLogSize,
	}
}

func (g *Gatekeeper) Policy() GatekeeperPolicy {
	return g.policy
}

// Evaluate decides layer activation, entropy halt and rerun for signals.
func (g *Gatekeeper) Evaluate(s domain.Signals) domain.GateDecision {
	d := Decide(g.policy, s)
	g.record(s, d)
	return d
}

// Decide is the pure rule table behind Evaluate.
func Decide(p GatekeeperPolicy, s domain.Signals) domain.GateDecision {
	p = p.withDefaults()
	d := domain.GateDecision{
		Activate: make(map[domain.LayerID]bool, len(domain.GatedLayers())),
		Reasons:  make(map[domain.LayerID]string),
	}
	activate := func(id domain.LayerID, reason string) {
		if !d.Activate[id] {
			d.Activate[id] = true
			d.Reasons[id] = reason
		}
	}
	below := func(id domain.LayerID, threshold float64) {
		if s.Confidence < threshold {
			activate(id, fmt.Sprintf("confidence %.3f < %.2f", s.Confidence, threshold))
		}
	}
	above := func(id domain.LayerID, threshold float64) {
		if s.Entropy > threshold {
			activate(id, fmt.Sprintf("entropy %.3f > %.2f", s.Entropy, threshold))
		}
	}
	flagged := func(id domain.LayerID, names ...string) {
		for _, n := range names {
			if s.HasFlag(n) {
				activate(id, "flag "+n)
				return
			}
		}
	}

	below(domain.LayerMultiRole, p.MultiRole.Confidence)
	flagged(domain.LayerMultiRole, FlagMultiRole)
	if len(s.TriggeredRoles) >= p.MultiRole.MinTriggeredRoles {
		activate(domain.LayerMultiRole, fmt.Sprintf("%d roles triggered", len(s.TriggeredRoles)))
	}

	below(domain.LayerPerspective, p.Perspective.Confidence)
	flagged(domain.LayerPerspective, FlagConfidenceOscillation)

	below(domain.LayerSectorDeepDive, p.SectorDeepDive.Confidence)
	flagged(domain.LayerSectorDeepDive, FlagConfidencePlateau)
	if len(s.RegulatoryFlags) > 0 {
		activate(domain.LayerSectorDeepDive, "flag "+s.RegulatoryFlags[0])
	}

	below(domain.LayerGoalPlanning, p.GoalPlanning.Confidence)
	above(domain.LayerGoalPlanning, p.GoalPlanning.Entropy)
	flagged(domain.LayerGoalPlanning, FlagConfidencePlateau, FlagGoalConflict)

	below(domain.LayerAmbiguity, p.Ambiguity.Confidence)
	above(domain.LayerAmbiguity, p.Ambiguity.Entropy)
	if s.ConflictCount >= p.Ambiguity.MinConflicts {
		activate(domain.LayerAmbiguity, fmt.Sprintf("%d conflicts", s.ConflictCount))
	}
	flagged(domain.LayerAmbiguity, FlagAmbiguityEscalation)

	below(domain.LayerRecursive, p.Recursive.Confidence)
	flagged(domain.LayerRecursive, FlagConfidenceOscillation, FlagBeliefContradiction, FlagConfidenceDecreasing)

	below(domain.LayerSelfAwareness, p.SelfAwareness.Confidence)
	above(domain.LayerSelfAwareness, p.SelfAwareness.Entropy)
	flagged(domain.LayerSelfAwareness, FlagEmergence, FlagHallucinationDrift)

	d.HaltDueToEntropy = s.Entropy > p.HaltEntropy

	target := s.TargetConfidence
	if target <= 0 {
		target = p.DefaultTarget
	}
	d.RequireRerun = !d.HaltDueToEntropy && s.Confidence < target
	return d
}

func (g *Gatekeeper) record(s domain.Signals, d domain.GateDecision) {
	g.mu.Lock()
	g.log = append(g.log, DecisionRecord{At: time.Now().UTC(), Signals: s, Decision: d})
	if len(g.log) > g.logSize {
		g.log = g.log[len(g.log)-g.logSize:]
	}
	g.mu.Unlock()

	g.logger.Debug("gatekeeper decision",
		zap.Float64("confidence", s.Confidence),
		zap.Float64("entropy", s.Entropy),
		zap.Int("active_layers", len(d.ActiveLayers())),
		zap.Bool("halt", d.HaltDueToEntropy),
		zap.Bool("rerun", d.RequireRerun))
}

// Decisions returns a copy of the most recent decisions, oldest first.
func (g *Gatekeeper) Decisions() []DecisionRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]DecisionRecord(nil), g.log...)
}
