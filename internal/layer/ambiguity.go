package layer

import (
	"context"
	"fmt"
	"math"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/scoring"
)

const (
	DefaultAmbiguityConfidence = 0.94
	DefaultAmbiguityEntropy    = 0.4
	DefaultAmbiguityConflicts  = 2
	DefaultClusterSimilarity   = 0.3
	DefaultCollapseIterations  = 100
)

type AmbiguityConfig struct {
	ConfidenceThreshold float64
	EntropyThreshold    float64
	ConflictThreshold   int
	ClusterSimilarity   float64
	Iterations          int
	Baseline            float64
	RoleWeights         domain.RoleWeights
	Fidelity            scoring.FidelityScorer
}

func DefaultAmbiguityConfig() AmbiguityConfig {
	return AmbiguityConfig{
		ConfidenceThreshold: DefaultAmbiguityConfidence,
		EntropyThreshold:    DefaultAmbiguityEntropy,
		ConflictThreshold:   DefaultAmbiguityConflicts,
		ClusterSimilarity:   DefaultClusterSimilarity,
		Iterations:          DefaultCollapseIterations,
		Baseline:            scoring.DefaultEntropyBaseline,
		RoleWeights:         domain.DefaultRoleWeights(),
		Fidelity:            scoring.HeuristicFidelity{DecayRate: scoring.DefaultFidelityDecayRate},
	}
}

// ClusterResolution is the outcome of collapsing one belief cluster.
type ClusterResolution struct {
	Cluster     int      `json:"cluster"`
	Members     []string `json:"members"`
	BeliefID    string   `json:"belief_id"`
	Probability float64  `json:"probability"`
}

// AmbiguityResolution is layer 8. Each belief is held as a pair of
// amplitudes (√c, √(1−c)); similar beliefs are clustered and every cluster
// linked to a goal is collapsed by repeated fidelity-weighted sampling.
type AmbiguityResolution struct {
	cfg AmbiguityConfig
}

func NewAmbiguityResolution(cfg AmbiguityConfig) *AmbiguityResolution {
	def := DefaultAmbiguityConfig()
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if cfg.EntropyThreshold <= 0 {
		cfg.EntropyThreshold = def.EntropyThreshold
	}
	if cfg.ConflictThreshold <= 0 {
		cfg.ConflictThreshold = def.ConflictThreshold
	}
	if cfg.ClusterSimilarity <= 0 {
		cfg.ClusterSimilarity = def.ClusterSimilarity
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = def.Iterations
	}
	if cfg.Baseline <= 0 {
		cfg.Baseline = def.Baseline
	}
	if cfg.RoleWeights == nil {
		cfg.RoleWeights = def.RoleWeights
	}
	if cfg.Fidelity == nil {
		cfg.Fidelity = def.Fidelity
	}
	return &AmbiguityResolution{cfg: cfg}
}

func (a *AmbiguityResolution) ID() domain.LayerID { return domain.LayerAmbiguity }
func (a *AmbiguityResolution) Name() string { return "ambiguity_resolution" }

// ShouldRun reports whether the context is ambiguous enough to resolve.
func (a *AmbiguityResolution) ShouldRun(rc *domain.ReasoningContext) bool {
	return rc.EscalateAmbiguity ||
		rc.Confidence < a.cfg.ConfidenceThreshold ||
		rc.Entropy > a.cfg.EntropyThreshold ||
		rc.UnresolvedConflicts() >= a.cfg.ConflictThreshold
}

func (a *AmbiguityResolution) Process(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, *domain.LayerReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	next := rc.Clone()
	if !a.ShouldRun(rc) {
		rep := newReport(a, domain.LayerSkipped, rc.Confidence)
		rep.Notes = append(rep.Notes, "context not ambiguous")
		return next, rep, nil
	}

	fidelity := a.fidelity(next)
	resolutions := a.Resolve(next, fidelity)

	contested := make([]bool, len(resolutions))
	for ri, res := range resolutions {
		members := make(map[string]bool, len(res.Members))
		for _, m := range res.Members {
			members[m] = true
		}
		for _, c := range next.Conflicts {
			if !c.Resolved && (members[c.LeftID] || members[c.RightID]) {
				contested[ri] = true
				break
			}
		}
	}

	// Conflicts whose two sides landed in one collapsed cluster are settled
	// in favour of the cluster winner.
	settled := 0
	for _, res := range resolutions {
		members := make(map[string]bool, len(res.Members))
		for _, m := range res.Members {
			members[m] = true
		}
		for i := range next.Conflicts {
			c := &next.Conflicts[i]
			if c.Resolved || !members[c.LeftID] || !members[c.RightID] {
				continue
			}
			if c.LeftID != res.BeliefID && c.RightID != res.BeliefID {
				continue
			}
			c.Resolved = true
			c.Resolution = "collapse:" + res.BeliefID
			settled++
		}
	}

	var alphaSum, betaSum float64
	for _, b := range next.Beliefs {
		c := scoring.Clamp01(b.Confidence)
		alphaSum += math.Sqrt(c)
		betaSum += math.Sqrt(1 - c)
	}
	if n := float64(len(next.Beliefs)); n > 0 {
		alphaSum /= n
		betaSum /= n
	}

	confidence := a.resolvedConfidence(next, resolutions, contested)
	if len(resolutions) == 0 {
		confidence = fidelity
	}

	next.SetMetric("fidelity", fidelity)
	rep := newReport(a, domain.LayerCompleted, confidence)
	rep.Metrics["fidelity"] = fidelity
	rep.Metrics["clusters"] = float64(len(resolutions))
	rep.Metrics["settled_conflicts"] = float64(settled)
	rep.Metrics["mean_alpha"] = alphaSum
	rep.Metrics["mean_beta"] = betaSum
	for _, res := range resolutions {
		rep.Notes = append(rep.Notes, fmt.Sprintf("cluster %d -> %s (%.2f)", res.Cluster, res.BeliefID, res.Probability))
	}
	return next, rep, nil
}

// resolvedConfidence is the mean confidence of the cluster winners. A winner
// of a contested cluster only counts in proportion to how often it was
// selected.
func (a *AmbiguityResolution) resolvedConfidence(rc *domain.ReasoningContext, resolutions []ClusterResolution, contested []bool) float64 {
	if len(resolutions) == 0 {
		return 0
	}
	vals := make([]float64, len(resolutions))
	for i, res := range resolutions {
		c := 0.0
		if idx := rc.BeliefByID(res.BeliefID); idx >= 0 {
			c = scoring.Clamp01(rc.Beliefs[idx].Confidence)
		}
		if contested[i] {
			c *= res.Probability
		}
		vals[i] = c
	}
	return scoring.Mean(vals)
}

func (a *AmbiguityResolution) fidelity(rc *domain.ReasoningContext) float64 {
	values := make([]float64, 0, len(rc.Beliefs))
	weights := make([]float64, 0, len(rc.Beliefs))
	for _, b := range rc.Beliefs {
		values = append(values, b.Confidence)
		weights = append(weights, a.cfg.RoleWeights.Weight(b.Source))
	}
	wc := rc.Confidence
	if len(values) > 0 {
		wc = scoring.WeightedAverage(values, weights)
	}
	baseline := rc.BaselineEntropy
	if baseline <= 0 {
		baseline = a.cfg.Baseline
	}
	return scoring.Clamp01(a.cfg.Fidelity.Fidelity(scoring.FidelityInput{
		WeightedConfidence: wc,
		Entropy:            rc.Entropy,
		Baseline:           baseline,
		PassNumber:         rc.PassNumber,
	}))
}

// Resolve collapses each goal-linked cluster and returns the winner of each
// with its empirical selection frequency. With no goals every cluster is
// considered linked. Results are deterministic for a given seed and pass.
func (a *AmbiguityResolution) Resolve(rc *domain.ReasoningContext, fidelity float64) []ClusterResolution {
	rng := passRand(rc, a.ID())
	clusters := ClusterBeliefs(rc.Beliefs, a.cfg.ClusterSimilarity)

	var out []ClusterResolution
	for ci, members := range clusters {
		if !a.goalLinked(rc, members) {
			continue
		}
		weights := make([]float64, len(members))
		var sum float64
		for i, idx := range members {
			b := rc.Beliefs[idx]
			weights[i] = a.cfg.RoleWeights.Weight(b.Source) * scoring.Clamp01(b.Confidence) * fidelity
			sum += weights[i]
		}
		if sum <= 0 {
			for i := range weights {
				weights[i] = 1
			}
			sum = float64(len(weights))
		}

		counts := make([]int, len(members))
		for n := 0; n < a.cfg.Iterations; n++ {
			r := rng.Float64() * sum
			pick := len(weights) - 1
			for i, w := range weights {
				if r < w {
					pick = i
					break
				}
				r -= w
			}
			counts[pick]++
		}
		best := 0
		for i := range counts {
			if counts[i] > counts[best] {
				best = i
			}
		}

		ids := make([]string, len(members))
		for i, idx := range members {
			ids[i] = rc.Beliefs[idx].ID
		}
		out = append(out, ClusterResolution{
			Cluster:     ci,
			Members:     ids,
			BeliefID:    ids[best],
			Probability: float64(counts[best]) / float64(a.cfg.Iterations),
		})
	}
	return out
}

func (a *AmbiguityResolution) goalLinked(rc *domain.ReasoningContext, members []int) bool {
	if len(rc.Goals) == 0 {
		return true
	}
	for _, idx := range members {
		for _, g := range rc.Goals {
			if scoring.SharesTopic(g.Content, rc.Beliefs[idx].Content) {
				return true
			}
		}
	}
	return false
}

// ClusterBeliefs groups beliefs whose keyword overlap reaches threshold,
// transitively. Clusters are returned as belief indexes in first-seen order.
func ClusterBeliefs(beliefs []domain.Belief, threshold float64) [][]int {
	parent := make([]int, len(beliefs))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	kws := make([][]string, len(beliefs))
	for i, b := range beliefs {
		kws[i] = scoring.Keywords(b.Content)
	}
	for i := 0; i < len(beliefs); i++ {
		for j := i + 1; j < len(beliefs); j++ {
			if scoring.Jaccard(kws[i], kws[j]) >= threshold {
				ri, rj := find(i), find(j)
				if ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	index := make(map[int]int)
	var clusters [][]int
	for i := range beliefs {
		r := find(i)
		ci, ok := index[r]
		if !ok {
			ci = len(clusters)
			index[r] = ci
			clusters = append(clusters, nil)
		}
		clusters[ci] = append(clusters[ci], i)
	}
	return clusters
}
