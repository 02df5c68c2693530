package layer

import (
	"context"
	"fmt"
	"math"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/scoring"
)

const (
	DefaultMaxRecursivePasses    = 5
	DefaultRecursiveThreshold    = 0.995
	DefaultRecursiveMinDelta     = 0.01
	DefaultRecursivePerturbation = 0.02
	DefaultReconcileFactor       = 0.8
	DefaultInjectionThreshold    = 0.9
	DefaultMaxInjectedPerPass    = 2
)

type RecursiveConfig struct {
	MaxPasses          int
	Threshold          float64
	MinDelta           float64
	Perturbation       float64
	ReconcileFactor    float64
	InjectPersonas     bool
	InjectionThreshold float64
	MaxInjected        int
	RoleWeights        domain.RoleWeights
}

func DefaultRecursiveConfig() RecursiveConfig {
	return RecursiveConfig{
		MaxPasses:          DefaultMaxRecursivePasses,
		Threshold:          DefaultRecursiveThreshold,
		MinDelta:           DefaultRecursiveMinDelta,
		Perturbation:       DefaultRecursivePerturbation,
		ReconcileFactor:    DefaultReconcileFactor,
		InjectPersonas:     true,
		InjectionThreshold: DefaultInjectionThreshold,
		MaxInjected:        DefaultMaxInjectedPerPass,
		RoleWeights:        domain.DefaultRoleWeights(),
	}
}

// RecursiveConsistency is layer 9. It re-examines the belief set in bounded
// inner passes, reconciling contradictions and optionally injecting expert
// personas, and reports the recursive confidence score over those passes.
type RecursiveConsistency struct {
	cfg     RecursiveConfig
	experts []domain.Persona
}

// NewRecursiveConsistency builds the layer. experts is the catalog personas
// are injected from; it may be empty.
func NewRecursiveConsistency(cfg RecursiveConfig, experts []domain.Persona) *RecursiveConsistency {
	def := DefaultRecursiveConfig()
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = def.MaxPasses
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MinDelta <= 0 {
		cfg.MinDelta = def.MinDelta
	}
	if cfg.ReconcileFactor <= 0 || cfg.ReconcileFactor >= 1 {
		cfg.ReconcileFactor = def.ReconcileFactor
	}
	if cfg.InjectionThreshold <= 0 {
		cfg.InjectionThreshold = def.InjectionThreshold
	}
	if cfg.MaxInjected <= 0 {
		cfg.MaxInjected = def.MaxInjected
	}
	if cfg.RoleWeights == nil {
		cfg.RoleWeights = def.RoleWeights
	}
	return &RecursiveConsistency{cfg: cfg, experts: append([]domain.Persona(nil), experts...)}
}

func (r *RecursiveConsistency) ID() domain.LayerID { return domain.LayerRecursive }
func (r *RecursiveConsistency) Name() string { return "recursive_consistency" }

func (r *RecursiveConsistency) Process(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, *domain.LayerReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	next := rc.Clone()
	rng := passRand(rc, r.ID())

	budget := r.cfg.MaxPasses
	if rc.RecursionBudget > 0 && rc.RecursionBudget < budget {
		budget = rc.RecursionBudget
	}

	var (
		confs      []float64
		reconciled int
		injected   int
	)
	stop := "budget"
	for i := 0; i < budget; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		next.RecursionDepth++

		for gi := range next.Goals {
			next.Goals[gi].Probability = scoring.Clamp01(next.Goals[gi].Probability + (rng.Float64()*2-1)*r.cfg.Perturbation)
		}

		if r.cfg.InjectPersonas && currentConfidence(next, confs) < r.cfg.InjectionThreshold {
			injected += r.inject(next, rng.IntN(r.cfg.MaxInjected)+1)
		}

		reconciled += r.reconcile(next)

		conf := r.innerConfidence(next)
		confs = append(confs, conf)
		if conf >= r.cfg.Threshold {
			stop = "threshold"
			break
		}
		if n := len(confs); n >= 2 && math.Abs(confs[n-1]-confs[n-2]) < r.cfg.MinDelta {
			stop = "converged"
			break
		}
	}

	rcs := scoring.RecursiveConfidenceScore(confs)
	alignment := MemoryAlignment(next.Beliefs)
	if reconciled > 0 {
		next.AddFlag(FlagBeliefContradiction)
	}
	next.SetMetric("rcs", rcs)
	next.SetMetric("memory_alignment", alignment)

	rep := newReport(r, domain.LayerCompleted, rcs)
	rep.Metrics["inner_passes"] = float64(len(confs))
	rep.Metrics["reconciled"] = float64(reconciled)
	rep.Metrics["injected"] = float64(injected)
	rep.Metrics["memory_alignment"] = alignment
	rep.Metrics["rcs"] = rcs
	rep.Notes = append(rep.Notes, "stopped: "+stop)
	return next, rep, nil
}

func currentConfidence(rc *domain.ReasoningContext, confs []float64) float64 {
	if len(confs) > 0 {
		return confs[len(confs)-1]
	}
	return rc.Confidence
}

// inject adds up to n experts that are not yet part of the session.
func (r *RecursiveConsistency) inject(rc *domain.ReasoningContext, n int) int {
	present := make(map[string]bool, len(rc.InjectedPersonas))
	for _, p := range rc.InjectedPersonas {
		present[p.Role] = true
	}
	added := 0
	for _, p := range r.experts {
		if added >= n {
			break
		}
		if present[p.Role] {
			continue
		}
		present[p.Role] = true
		rc.InjectedPersonas = append(rc.InjectedPersonas, p)
		content := p.Statement
		if content == "" {
			content = fmt.Sprintf("%s review of %s", p.Role, rc.Query)
		}
		c := scoring.Clamp01(p.ConfidenceBase)
		rc.Beliefs = append(rc.Beliefs, domain.Belief{
			ID:                 fmt.Sprintf("b-%s-%d", p.Role, rc.PassNumber),
			Content:            content,
			Confidence:         c,
			OriginalConfidence: c,
			Decay:              1,
			Source:             p.Role,
		})
		added++
	}
	return added
}

// reconcile finds contradicting pairs among beliefs not yet reconciled and
// scales the lower-confidence side by ReconcileFactor. Each belief is
// reconciled at most once.
func (r *RecursiveConsistency) reconcile(rc *domain.ReasoningContext) int {
	n := 0
	for i := 0; i < len(rc.Beliefs); i++ {
		for j := i + 1; j < len(rc.Beliefs); j++ {
			bi, bj := &rc.Beliefs[i], &rc.Beliefs[j]
			if bi.ReconciledWith != "" || bj.ReconciledWith != "" {
				continue
			}
			if !scoring.Contradicts(bi.Content, bj.Content) {
				continue
			}
			hi, lo := bi, bj
			if bj.Confidence > bi.Confidence {
				hi, lo = bj, bi
			}
			lo.Confidence = scoring.Clamp01(lo.Confidence * r.cfg.ReconcileFactor)
			lo.ReconciledWith = hi.ID
			markResolved(rc, hi.ID, lo.ID)
			n++
		}
	}
	return n
}

func markResolved(rc *domain.ReasoningContext, winner, loser string) {
	for i := range rc.Conflicts {
		c := &rc.Conflicts[i]
		if (c.LeftID == winner && c.RightID == loser) || (c.LeftID == loser && c.RightID == winner) {
			if !c.Resolved {
				c.Resolved = true
				c.Resolution = "reconciled:" + winner
			}
			return
		}
	}
	rc.Conflicts = append(rc.Conflicts, domain.Conflict{
		ID:         fmt.Sprintf("c-%d", len(rc.Conflicts)+1),
		Kind:       domain.ConflictBeliefBelief,
		LeftID:     winner,
		RightID:    loser,
		Severity:   1,
		Resolved:   true,
		Resolution: "reconciled:" + winner,
	})
}

func (r *RecursiveConsistency) innerConfidence(rc *domain.ReasoningContext) float64 {
	if len(rc.Beliefs) == 0 {
		return rc.Confidence
	}
	values := make([]float64, len(rc.Beliefs))
	weights := make([]float64, len(rc.Beliefs))
	for i, b := range rc.Beliefs {
		values[i] = b.Confidence
		weights[i] = r.cfg.RoleWeights.Weight(b.Source)
	}
	return scoring.Clamp01(0.5*rc.Confidence + 0.5*scoring.WeightedAverage(values, weights))
}

// MemoryAlignment is 1 − reconciled/total over beliefs, 1 for an empty set.
func MemoryAlignment(beliefs []domain.Belief) float64 {
	if len(beliefs) == 0 {
		return 1
	}
	n := 0
	for _, b := range beliefs {
		if b.ReconciledWith != "" {
			n++
		}
	}
	return 1 - float64(n)/float64(len(beliefs))
}
