package layer

import (
	"context"
	"testing"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contradictionContext() *domain.ReasoningContext {
	return &domain.ReasoningContext{
		SessionID:  "s-1",
		Query:      "Should operators encrypt backups?",
		Seed:       42,
		PassNumber: 1,
		Confidence: 0.7,
		Entropy:    0.5,
		Roles: map[string]domain.RoleOutput{
			domain.RoleRegulatory: {Role: domain.RoleRegulatory, Response: "Operators must encrypt backups", Confidence: 0.9, BeliefIDs: []string{"b1"}},
			domain.RoleSector:     {Role: domain.RoleSector, Response: "Operators should not encrypt backups", Confidence: 0.6, BeliefIDs: []string{"b2"}},
		},
		Beliefs: []domain.Belief{
			{ID: "b1", Content: "Operators must encrypt backups", Confidence: 0.9, OriginalConfidence: 0.9, Decay: 1, Source: domain.RoleRegulatory},
			{ID: "b2", Content: "Operators should not encrypt backups", Confidence: 0.6, OriginalConfidence: 0.6, Decay: 1, Source: domain.RoleSector},
		},
	}
}

func TestPassthrough(t *testing.T) {
	rc := contradictionContext()
	for _, s := range DefaultPassthroughs() {
		next, rep, err := s.Process(context.Background(), rc)
		require.NoError(t, err)
		assert.Equal(t, rc.Version+1, next.Version)
		assert.Equal(t, domain.LayerCompleted, rep.Status)
		assert.Equal(t, rc.Confidence, rep.Confidence)
		assert.Equal(t, s.ID(), rep.Layer)
	}
	set := NewSet(DefaultPassthroughs()...)
	assert.Len(t, set, 3)
	assert.Contains(t, set, domain.LayerPerspective)
}

func TestPassthrough_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewPassthrough(domain.LayerMultiRole, "multi_role").Process(ctx, contradictionContext())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecursiveConsistency_ReconcilesLowerBelief(t *testing.T) {
	cfg := DefaultRecursiveConfig()
	cfg.InjectPersonas = false
	layer := NewRecursiveConsistency(cfg, nil)

	rc := contradictionContext()
	next, rep, err := layer.Process(context.Background(), rc)
	require.NoError(t, err)

	b1 := next.Beliefs[next.BeliefByID("b1")]
	b2 := next.Beliefs[next.BeliefByID("b2")]
	assert.Equal(t, 0.9, b1.Confidence)
	assert.Empty(t, b1.ReconciledWith)
	assert.InDelta(t, 0.48, b2.Confidence, 1e-12)
	assert.Equal(t, "b1", b2.ReconciledWith)
	assert.True(t, next.HasFlag(FlagBeliefContradiction))
	assert.Equal(t, 0, next.UnresolvedConflicts())
	assert.Equal(t, 1.0, rep.Metrics["reconciled"])
	assert.InDelta(t, 0.5, rep.Metrics["memory_alignment"], 1e-12)

	// The input context is untouched.
	assert.Equal(t, 0.6, rc.Beliefs[1].Confidence)
	assert.Empty(t, rc.Beliefs[1].ReconciledWith)

	// A belief is reconciled once only.
	again, _, err := layer.Process(context.Background(), next)
	require.NoError(t, err)
	assert.InDelta(t, 0.48, again.Beliefs[again.BeliefByID("b2")].Confidence, 1e-12)
}

func TestRecursiveConsistency_RespectsBudget(t *testing.T) {
	cfg := DefaultRecursiveConfig()
	cfg.InjectPersonas = false
	layer := NewRecursiveConsistency(cfg, nil)

	rc := contradictionContext()
	rc.RecursionBudget = 1
	next, rep, err := layer.Process(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, 1, next.RecursionDepth)
	assert.Equal(t, 1.0, rep.Metrics["inner_passes"])

	rc.RecursionBudget = 0
	next, rep, err = layer.Process(context.Background(), rc)
	require.NoError(t, err)
	assert.LessOrEqual(t, next.RecursionDepth, DefaultMaxRecursivePasses)
	assert.LessOrEqual(t, rep.Metrics["inner_passes"], float64(DefaultMaxRecursivePasses))
}

func TestRecursiveConsistency_InjectsDistinctExperts(t *testing.T) {
	experts := []domain.Persona{
		{Role: "auditor", ConfidenceBase: 0.7, SourceAxis: "assurance"},
		{Role: "economist", ConfidenceBase: 0.6, SourceAxis: "markets"},
		{Role: "ethicist", ConfidenceBase: 0.65, SourceAxis: "ethics"},
	}
	layer := NewRecursiveConsistency(DefaultRecursiveConfig(), experts)

	rc := contradictionContext()
	rc.Confidence = 0.3
	next, rep, err := layer.Process(context.Background(), rc)
	require.NoError(t, err)

	require.NotEmpty(t, next.InjectedPersonas)
	seen := map[string]bool{}
	for _, p := range next.InjectedPersonas {
		assert.False(t, seen[p.Role], "persona %s injected twice", p.Role)
		seen[p.Role] = true
	}
	assert.Equal(t, float64(len(next.InjectedPersonas)), rep.Metrics["injected"])
	assert.Greater(t, len(next.Beliefs), len(rc.Beliefs))
}

func TestSelfAwareness_CriticalEmergenceHalts(t *testing.T) {
	layer := NewSelfAwareness(DefaultSelfAwarenessConfig(), NewAnchorSet(0))

	rc := contradictionContext()
	rc.Confidence = 0.95
	rc.Entropy = 0.95
	rc.BaselineEntropy = 0.3
	rc.PlateauStreak = 3
	for i := 0; i < 6; i++ {
		rc.InjectedPersonas = append(rc.InjectedPersonas, domain.Persona{Role: string(rune('a' + i))})
	}

	next, rep, err := layer.Process(context.Background(), rc)
	require.NoError(t, err)
	require.NotNil(t, next.Self)

	assert.True(t, next.Self.CriticalEmergence)
	assert.Equal(t, domain.ContainmentHalt, next.Self.Action)
	assert.True(t, next.Self.HumanReviewRequired)
	assert.Contains(t, next.Self.Triggers, TriggerCriticalEmergence)
	assert.ElementsMatch(t, []string{HeuristicRoleProliferation, HeuristicEntropyDrift, HeuristicPlateau}, next.Self.Heuristics)
	assert.InDelta(t, 0.6, next.Self.EmergenceScore, 1e-12)
	assert.True(t, next.HasFlag(FlagEmergence))
	assert.InDelta(t, 0.4, rep.Confidence, 1e-12)
}

func TestSelfAwareness_QuietContext(t *testing.T) {
	layer := NewSelfAwareness(DefaultSelfAwarenessConfig(), NewAnchorSet(0))

	rc := &domain.ReasoningContext{
		SessionID:       "s-2",
		Query:           "Retention period for invoices",
		PassNumber:      1,
		Confidence:      0.9,
		Entropy:         0.3,
		BaselineEntropy: 0.3,
		Beliefs: []domain.Belief{
			{ID: "b1", Content: "Invoices are retained for seven years", Confidence: 0.9, OriginalConfidence: 0.9, Source: domain.RoleCompliance},
		},
	}
	next, _, err := layer.Process(context.Background(), rc)
	require.NoError(t, err)

	assert.Equal(t, 1.0, next.Self.IdentityConsistency, "empty anchor set")
	assert.Equal(t, domain.ContainmentNone, next.Self.Action)
	assert.False(t, next.Self.HumanReviewRequired)
	assert.Empty(t, next.Self.Triggers)
	assert.InDelta(t, 0.9*scoring.BeliefDecay(1, 1, scoring.DefaultBeliefDecayLambda), next.Beliefs[0].Confidence, 1e-12)
	assert.Len(t, next.NewAnchors, 2)
	assert.Equal(t, 0.9, rc.Beliefs[0].Confidence)
}

func TestSelfAwareness_ReinforcedDecaysSlower(t *testing.T) {
	layer := NewSelfAwareness(DefaultSelfAwarenessConfig(), nil)
	rc := &domain.ReasoningContext{
		Query:      "q",
		PassNumber: 4,
		Beliefs: []domain.Belief{
			{ID: "plain", Content: "plain belief", Confidence: 0.8, OriginalConfidence: 0.8},
			{ID: "strong", Content: "strong belief", Confidence: 0.8, OriginalConfidence: 0.8, Reinforced: true},
		},
	}
	next, _, err := layer.Process(context.Background(), rc)
	require.NoError(t, err)
	assert.Greater(t, next.Beliefs[1].Confidence, next.Beliefs[0].Confidence)
	assert.Less(t, next.Beliefs[0].Confidence, 0.8)
}

func TestSelfAwareness_IdentityAgainstAnchors(t *testing.T) {
	anchors := NewAnchorSet(0)
	anchors.Add(scoring.AnchorKey("query", "Retention period for invoices"))
	layer := NewSelfAwareness(DefaultSelfAwarenessConfig(), anchors)

	rc := &domain.ReasoningContext{
		Query:      "Retention period for invoices",
		PassNumber: 1,
		Entropy:    0.3,
		Beliefs: []domain.Belief{
			{ID: "b1", Content: "Invoices are retained for seven years", Confidence: 0.9, OriginalConfidence: 0.9},
		},
	}
	next, _, err := layer.Process(context.Background(), rc)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, next.Self.IdentityConsistency, 1e-12)
	assert.NotContains(t, next.Self.Triggers, TriggerLowIdentity)
}

func TestContainmentFor(t *testing.T) {
	tests := []struct {
		critical bool
		triggers int
		want     domain.ContainmentAction
	}{
		{false, 0, domain.ContainmentNone},
		{false, 1, domain.ContainmentLimit},
		{false, 2, domain.ContainmentLimit},
		{false, 3, domain.ContainmentHalt},
		{true, 0, domain.ContainmentHalt},
		{true, 1, domain.ContainmentHalt},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContainmentFor(tt.critical, tt.triggers), "critical=%v triggers=%d", tt.critical, tt.triggers)
	}
}

func TestAnchorSet_EvictsOldest(t *testing.T) {
	a := NewAnchorSet(2)
	assert.Equal(t, 2, a.Add("k1", "k2", "k1"))
	assert.Equal(t, 1, a.Add("k3"))
	assert.Equal(t, 2, a.Len())
	assert.False(t, a.Contains("k1"))
	assert.True(t, a.Contains("k3"))
	assert.Equal(t, 1, a.Evicted())
}
