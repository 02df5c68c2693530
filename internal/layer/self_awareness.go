package layer

import (
	"context"
	"math"
	"strings"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/scoring"
)

// Emergence heuristics.
const (
	HeuristicSelfReplication   = "self_replication"
	HeuristicMemoryGrowth      = "memory_growth"
	HeuristicRoleProliferation = "role_proliferation"
	HeuristicEntropyDrift      = "entropy_drift"
	HeuristicPlateau           = "confidence_plateau"
)

// Containment triggers.
const (
	TriggerLowIdentity        = "low_identity_consistency"
	TriggerEntropyDrift       = "entropy_drift"
	TriggerPoorDecayHealth    = "poor_decay_health"
	TriggerCriticalEmergence  = "critical_emergence"
	TriggerExcessiveRecursion = "excessive_recursion"
)

const emergenceHeuristicCount = 5

const (
	DefaultICSThreshold         = 0.5
	DefaultEntropyDriftCeiling  = 0.4
	DefaultDecayHealthThreshold = 0.5
	DefaultMemoryGrowthLimit    = 0.3
	DefaultMaxInjectedRoles     = 5
	DefaultPlateauStreakLimit   = 3
	DefaultReplicationRatio     = 0.3
	DefaultCriticalEmergence    = 0.6
	DefaultFingerprintDims      = 64
)

type SelfAwarenessConfig struct {
	DecayLambda          float64
	ICSThreshold         float64
	EntropyDriftCeiling  float64
	DecayHealthThreshold float64
	MemoryGrowthLimit    float64
	MaxInjectedRoles     int
	PlateauStreakLimit   int
	ReplicationRatio     float64
	CriticalEmergence    float64
	EnergyCapacity       float64
	Baseline             float64
	FingerprintDims      int
}

func DefaultSelfAwarenessConfig() SelfAwarenessConfig {
	return SelfAwarenessConfig{
		DecayLambda:          scoring.DefaultBeliefDecayLambda,
		ICSThreshold:         DefaultICSThreshold,
		EntropyDriftCeiling:  DefaultEntropyDriftCeiling,
		DecayHealthThreshold: DefaultDecayHealthThreshold,
		MemoryGrowthLimit:    DefaultMemoryGrowthLimit,
		MaxInjectedRoles:     DefaultMaxInjectedRoles,
		PlateauStreakLimit:   DefaultPlateauStreakLimit,
		ReplicationRatio:     DefaultReplicationRatio,
		CriticalEmergence:    DefaultCriticalEmergence,
		EnergyCapacity:       scoring.DefaultEnergyCapacity,
		Baseline:             scoring.DefaultEntropyBaseline,
		FingerprintDims:      DefaultFingerprintDims,
	}
}

// SelfAwareness is layer 10. It decays beliefs, checks identity consistency
// against the process-wide anchors, scores emergence and decides containment.
type SelfAwareness struct {
	cfg     SelfAwarenessConfig
	anchors AnchorView
}

func NewSelfAwareness(cfg SelfAwarenessConfig, anchors AnchorView) *SelfAwareness {
	def := DefaultSelfAwarenessConfig()
	if cfg.DecayLambda <= 0 {
		cfg.DecayLambda = def.DecayLambda
	}
	if cfg.ICSThreshold <= 0 {
		cfg.ICSThreshold = def.ICSThreshold
	}
	if cfg.EntropyDriftCeiling <= 0 {
		cfg.EntropyDriftCeiling = def.EntropyDriftCeiling
	}
	if cfg.DecayHealthThreshold <= 0 {
		cfg.DecayHealthThreshold = def.DecayHealthThreshold
	}
	if cfg.MemoryGrowthLimit <= 0 {
		cfg.MemoryGrowthLimit = def.MemoryGrowthLimit
	}
	if cfg.MaxInjectedRoles <= 0 {
		cfg.MaxInjectedRoles = def.MaxInjectedRoles
	}
	if cfg.PlateauStreakLimit <= 0 {
		cfg.PlateauStreakLimit = def.PlateauStreakLimit
	}
	if cfg.ReplicationRatio <= 0 {
		cfg.ReplicationRatio = def.ReplicationRatio
	}
	if cfg.CriticalEmergence <= 0 {
		cfg.CriticalEmergence = def.CriticalEmergence
	}
	if cfg.EnergyCapacity <= 0 {
		cfg.EnergyCapacity = def.EnergyCapacity
	}
	if cfg.Baseline <= 0 {
		cfg.Baseline = def.Baseline
	}
	if cfg.FingerprintDims <= 0 {
		cfg.FingerprintDims = def.FingerprintDims
	}
	if anchors == nil {
		anchors = NewAnchorSet(0)
	}
	return &SelfAwareness{cfg: cfg, anchors: anchors}
}

func (s *SelfAwareness) ID() domain.LayerID { return domain.LayerSelfAwareness }
func (s *SelfAwareness) Name() string { return "self_awareness" }

func (s *SelfAwareness) Process(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, *domain.LayerReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	next := rc.Clone()

	decayHealth := s.decay(next)

	anchors := s.collectAnchors(next)
	ics := 1.0
	if s.anchors.Len() > 0 {
		shared := 0
		for _, a := range anchors {
			if s.anchors.Contains(a.Key) {
				shared++
			}
		}
		ics = scoring.IdentityConsistencyScore(shared, len(anchors))
	}
	next.NewAnchors = anchors

	baseline := next.BaselineEntropy
	if baseline <= 0 {
		baseline = s.cfg.Baseline
	}
	entropyDrift := next.Entropy-baseline > s.cfg.EntropyDriftCeiling

	heuristics := s.emergenceHeuristics(next, entropyDrift)
	emergence := scoring.TriggerRatio(len(heuristics), emergenceHeuristicCount)
	critical := emergence >= s.cfg.CriticalEmergence

	energy := scoring.EnergyLimit(s.cfg.EnergyCapacity, next.Entropy, baseline, next.Confidence)
	allowedDepth := int(math.Floor(energy))

	var triggers []string
	if ics < s.cfg.ICSThreshold {
		triggers = append(triggers, TriggerLowIdentity)
	}
	if entropyDrift {
		triggers = append(triggers, TriggerEntropyDrift)
	}
	if decayHealth < s.cfg.DecayHealthThreshold {
		triggers = append(triggers, TriggerPoorDecayHealth)
	}
	if critical {
		triggers = append(triggers, TriggerCriticalEmergence)
	}
	if next.RecursionDepth > allowedDepth {
		triggers = append(triggers, TriggerExcessiveRecursion)
	}

	action := ContainmentFor(critical, len(triggers))
	next.Self = &domain.SelfAssessment{
		IdentityConsistency: ics,
		EmergenceScore:      emergence,
		CriticalEmergence:   critical,
		EnergyLimit:         energy,
		DecayHealth:         decayHealth,
		Heuristics:          heuristics,
		Triggers:            triggers,
		Action:              action,
		HumanReviewRequired: critical,
	}
	if critical || len(heuristics) >= 2 {
		next.AddFlag(FlagEmergence)
	}
	next.SetMetric("ics", ics)
	next.SetMetric("emergence", emergence)

	rep := newReport(s, domain.LayerCompleted, scoring.Clamp01(ics*(1-emergence)))
	rep.Metrics["ics"] = ics
	rep.Metrics["emergence"] = emergence
	rep.Metrics["energy_limit"] = energy
	rep.Metrics["decay_health"] = decayHealth
	rep.Metrics["anchors"] = float64(len(anchors))
	rep.Notes = append(rep.Notes, "containment: "+string(action))
	return next, rep, nil
}

// ContainmentFor maps a self-assessment onto an action: critical emergence
// or three triggers halt, any trigger limits.
func ContainmentFor(critical bool, triggers int) domain.ContainmentAction {
	switch {
	case critical, triggers >= 3:
		return domain.ContainmentHalt
	case triggers >= 1:
		return domain.ContainmentLimit
	}
	return domain.ContainmentNone
}

// decay applies B(t) = B0·e^(−λt) to every belief, halving λ for reinforced
// ones, and returns the mean retained fraction.
func (s *SelfAwareness) decay(rc *domain.ReasoningContext) float64 {
	if len(rc.Beliefs) == 0 {
		return 1
	}
	t := scoring.DecayTime(rc.PassNumber)
	var health float64
	for i := range rc.Beliefs {
		b := &rc.Beliefs[i]
		b0 := b.OriginalConfidence
		if b0 <= 0 {
			b0 = b.Confidence
		}
		decayed := scoring.BeliefDecay(b0, t, scoring.EffectiveLambda(s.cfg.DecayLambda, b.Reinforced))
		if decayed < b.Confidence {
			b.Confidence = decayed
		}
		if b0 > 0 {
			b.Decay = b.Confidence / b0
		} else {
			b.Decay = 0
		}
		health += b.Decay
	}
	return health / float64(len(rc.Beliefs))
}

func (s *SelfAwareness) collectAnchors(rc *domain.ReasoningContext) []domain.AnchorRecord {
	seen := make(map[string]bool)
	var out []domain.AnchorRecord
	add := func(kind, content string) {
		key := scoring.AnchorKey(kind, content)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, domain.AnchorRecord{
			Key:         key,
			Kind:        kind,
			SessionID:   rc.SessionID,
			Fingerprint: scoring.Fingerprint(content, s.cfg.FingerprintDims),
		})
	}
	add("query", rc.Query)
	for _, b := range rc.Beliefs {
		if b.ReconciledWith == "" {
			add("belief", b.Content)
		}
	}
	for _, g := range rc.Goals {
		if g.Depth <= 1 {
			add("goal", g.Content)
		}
	}
	return out
}

func (s *SelfAwareness) emergenceHeuristics(rc *domain.ReasoningContext, entropyDrift bool) []string {
	var out []string

	if n := len(rc.Beliefs); n > 0 {
		seen := make(map[string]bool, n)
		dups := 0
		for _, b := range rc.Beliefs {
			key := strings.Join(scoring.Tokens(b.Content), " ")
			if seen[key] {
				dups++
			}
			seen[key] = true
		}
		if float64(dups)/float64(n) > s.cfg.ReplicationRatio {
			out = append(out, HeuristicSelfReplication)
		}
	}
	if rc.PrevBeliefCount > 0 {
		growth := float64(len(rc.Beliefs)-rc.PrevBeliefCount) / float64(rc.PrevBeliefCount)
		if growth > s.cfg.MemoryGrowthLimit {
			out = append(out, HeuristicMemoryGrowth)
		}
	}
	if len(rc.InjectedPersonas) > s.cfg.MaxInjectedRoles {
		out = append(out, HeuristicRoleProliferation)
	}
	if entropyDrift {
		out = append(out, HeuristicEntropyDrift)
	}
	if rc.PlateauStreak >= s.cfg.PlateauStreakLimit {
		out = append(out, HeuristicPlateau)
	}
	return out
}
