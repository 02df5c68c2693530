package layer

import (
	"context"
	"strings"
	"testing"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedEmergence float64

func (f fixedEmergence) Emergence(scoring.EmergenceInput) float64 { return float64(f) }

func TestGoalPlanning_BuildsTree(t *testing.T) {
	layer := NewGoalPlanning(DefaultGoalPlanningConfig())
	rc := contradictionContext()

	next, rep, err := layer.Process(context.Background(), rc)
	require.NoError(t, err)
	require.NotEmpty(t, next.Goals)

	root := next.Goals[0]
	assert.Equal(t, 0, root.Depth)
	assert.True(t, strings.HasPrefix(root.Content, "resolve "))

	depths := map[int]int{}
	for _, g := range next.Goals {
		depths[g.Depth]++
		assert.GreaterOrEqual(t, g.Probability, 0.0)
		assert.LessOrEqual(t, g.Probability, 1.0)
		assert.Less(t, g.Depth, DefaultGoalMaxDepth)
		if g.Depth > 0 {
			assert.NotEmpty(t, g.ParentID)
		}
	}
	assert.Equal(t, 2, depths[1], "one goal per role")
	assert.Positive(t, depths[2])

	assert.Equal(t, rep.Metrics["convergence"], rep.Confidence)
	assert.Empty(t, rc.Goals, "input context is untouched")
}

func TestGoalPlanning_Deterministic(t *testing.T) {
	layer := NewGoalPlanning(DefaultGoalPlanningConfig())
	a, _, err := layer.Process(context.Background(), contradictionContext())
	require.NoError(t, err)
	b, _, err := layer.Process(context.Background(), contradictionContext())
	require.NoError(t, err)
	assert.Equal(t, a.Goals, b.Goals)

	other := contradictionContext()
	other.Seed = 7
	c, _, err := layer.Process(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, a.Goals[0].Probability, c.Goals[0].Probability)
}

func TestGoalPlanning_ArbitratesByWeightedVote(t *testing.T) {
	layer := NewGoalPlanning(DefaultGoalPlanningConfig())
	rc := contradictionContext()
	rc.Conflicts = []domain.Conflict{
		{ID: "c-1", Kind: domain.ConflictBeliefBelief, LeftID: "b1", RightID: "b2", Severity: 0.8},
	}

	next, rep, err := layer.Process(context.Background(), rc)
	require.NoError(t, err)

	require.NotEmpty(t, next.Conflicts)
	c := next.Conflicts[0]
	assert.True(t, c.Resolved)
	assert.Equal(t, "vote:b1", c.Resolution)
	assert.GreaterOrEqual(t, rep.Metrics["resolved"], 1.0)
	assert.False(t, rc.Conflicts[0].Resolved)
}

func TestGoalPlanning_EscalatesAmbiguity(t *testing.T) {
	cfg := DefaultGoalPlanningConfig()
	cfg.Emergence = fixedEmergence(0.95)
	next, _, err := NewGoalPlanning(cfg).Process(context.Background(), contradictionContext())
	require.NoError(t, err)
	assert.True(t, next.EscalateAmbiguity)
	assert.True(t, next.HasFlag(FlagAmbiguityEscalation))

	cfg.Emergence = fixedEmergence(0.1)
	next, _, err = NewGoalPlanning(cfg).Process(context.Background(), contradictionContext())
	require.NoError(t, err)
	assert.False(t, next.EscalateAmbiguity)
}

func TestRoleAgreement(t *testing.T) {
	assert.Equal(t, 1.0, roleAgreement(nil))
	assert.Equal(t, 1.0, roleAgreement(map[string]domain.RoleOutput{
		"a": {Confidence: 0.8}, "b": {Confidence: 0.85},
	}))
	assert.InDelta(t, 1.0/3.0, roleAgreement(map[string]domain.RoleOutput{
		"a": {Confidence: 0.8}, "b": {Confidence: 0.85}, "c": {Confidence: 0.2},
	}), 1e-12)
}

func TestClusterBeliefs(t *testing.T) {
	beliefs := []domain.Belief{
		{ID: "b1", Content: "encrypt nightly backups offsite"},
		{ID: "b2", Content: "invoice retention policy"},
		{ID: "b3", Content: "encrypt nightly backups onsite"},
	}
	assert.Equal(t, [][]int{{0, 2}, {1}}, ClusterBeliefs(beliefs, DefaultClusterSimilarity))
	assert.Empty(t, ClusterBeliefs(nil, DefaultClusterSimilarity))
}

func TestAmbiguityResolution_SkipsConfidentContext(t *testing.T) {
	layer := NewAmbiguityResolution(DefaultAmbiguityConfig())
	rc := contradictionContext()
	rc.Confidence = 0.99
	rc.Entropy = 0.1

	next, rep, err := layer.Process(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, domain.LayerSkipped, rep.Status)
	assert.Equal(t, rc.Beliefs, next.Beliefs)
}

func TestAmbiguityResolution_CollapsesClusters(t *testing.T) {
	layer := NewAmbiguityResolution(DefaultAmbiguityConfig())
	rc := contradictionContext()
	rc.Beliefs = append(rc.Beliefs, domain.Belief{
		ID: "b3", Content: "Invoices are kept for seven years", Confidence: 0.8, OriginalConfidence: 0.8, Source: domain.RoleCompliance,
	})
	rc.Conflicts = []domain.Conflict{
		{ID: "c-1", Kind: domain.ConflictBeliefBelief, LeftID: "b1", RightID: "b2", Severity: 0.8},
	}

	first := layer.Resolve(rc, 0.8)
	second := layer.Resolve(rc, 0.8)
	require.Len(t, first, 2)
	assert.Equal(t, first, second, "same seed and pass collapse identically")

	for _, res := range first {
		assert.Contains(t, res.Members, res.BeliefID)
		assert.Greater(t, res.Probability, 0.0)
		assert.LessOrEqual(t, res.Probability, 1.0)
	}
	assert.Equal(t, 1.0, first[1].Probability, "singleton cluster always selects its only belief")

	next, rep, err := layer.Process(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, domain.LayerCompleted, rep.Status)
	assert.Equal(t, 2.0, rep.Metrics["clusters"])
	assert.True(t, next.Conflicts[0].Resolved)
	assert.True(t, strings.HasPrefix(next.Conflicts[0].Resolution, "collapse:"))
	assert.False(t, rc.Conflicts[0].Resolved)
}

func TestAmbiguityResolution_OnlyGoalLinkedClusters(t *testing.T) {
	layer := NewAmbiguityResolution(DefaultAmbiguityConfig())
	rc := contradictionContext()
	rc.Beliefs = append(rc.Beliefs, domain.Belief{ID: "b3", Content: "Invoices are kept for seven years", Confidence: 0.8})
	rc.Goals = []domain.Goal{{ID: "g0", Content: "resolve backups policy", Probability: 0.7}}

	res := layer.Resolve(rc, 0.8)
	require.Len(t, res, 1)
	assert.ElementsMatch(t, []string{"b1", "b2"}, res[0].Members)
}

func TestAmbiguityResolution_UncontestedReportsWinnerConfidence(t *testing.T) {
	layer := NewAmbiguityResolution(DefaultAmbiguityConfig())
	rc := &domain.ReasoningContext{
		SessionID:  "s-1",
		Query:      "ship perishable goods to hamburg",
		Seed:       42,
		PassNumber: 3,
		Confidence: 0.85,
		Entropy:    0.3,
		Beliefs: []domain.Belief{
			{ID: "b1", Content: "knowledge view on ship perishable goods to hamburg", Confidence: 0.85, Source: domain.RoleKnowledge},
			{ID: "b2", Content: "sector view on ship perishable goods to hamburg", Confidence: 0.85, Source: domain.RoleSector},
		},
	}

	_, rep, err := layer.Process(context.Background(), rc)
	require.NoError(t, err)
	require.Equal(t, domain.LayerCompleted, rep.Status)
	assert.Equal(t, 1.0, rep.Metrics["clusters"])
	assert.InDelta(t, 0.85, rep.Confidence, 1e-12)
	assert.Less(t, rep.Metrics["fidelity"], rep.Confidence)
}

func TestAmbiguityResolution_ContestedClusterScaledBySelection(t *testing.T) {
	layer := NewAmbiguityResolution(DefaultAmbiguityConfig())
	rc := contradictionContext()
	rc.Conflicts = []domain.Conflict{
		{ID: "c-1", Kind: domain.ConflictBeliefBelief, LeftID: "b1", RightID: "b2", Severity: 0.8},
	}

	res := layer.Resolve(rc, layer.fidelity(rc))
	require.Len(t, res, 1)
	winner := rc.Beliefs[rc.BeliefByID(res[0].BeliefID)]

	_, rep, err := layer.Process(context.Background(), rc)
	require.NoError(t, err)
	assert.InDelta(t, winner.Confidence*res[0].Probability, rep.Confidence, 1e-12)
	assert.Less(t, rep.Confidence, winner.Confidence)
}
