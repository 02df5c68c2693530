package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGatekeeper_EvaluateIsPure(t *testing.T) {
	g := NewGatekeeper(DefaultGatekeeperPolicy(), zap.NewNop())
	signals := []domain.Signals{
		{Confidence: 0.5, Entropy: 0.6},
		{Confidence: 0.99, Entropy: 0.1},
		{Confidence: 0.8, Entropy: 0.3, Flags: []string{FlagEmergence}, ConflictCount: 3},
		{Confidence: 0.97, Entropy: 0.2, RegulatoryFlags: []string{"regulatory_review"}},
	}
	for _, s := range signals {
		first := g.Evaluate(s)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, g.Evaluate(s))
		}
		assert.Equal(t, first, Decide(DefaultGatekeeperPolicy(), s))
	}
	assert.Len(t, g.Decisions(), len(signals)*6)
}

func TestGatekeeper_ConfidentPassActivatesNothing(t *testing.T) {
	d := Decide(DefaultGatekeeperPolicy(), domain.Signals{Confidence: 0.99, Entropy: 0.1, TargetConfidence: 0.95})
	assert.Empty(t, d.ActiveLayers())
	assert.False(t, d.HaltDueToEntropy)
	assert.False(t, d.RequireRerun)
}

func TestGatekeeper_LayerThresholds(t *testing.T) {
	tests := []struct {
		name    string
		signals domain.Signals
		want    []domain.LayerID
	}{
		{
			name:    "just below multi role",
			signals: domain.Signals{Confidence: 0.945, Entropy: 0.1},
			want:    []domain.LayerID{domain.LayerMultiRole, domain.LayerPerspective},
		},
		{
			name:    "below ambiguity",
			signals: domain.Signals{Confidence: 0.93, Entropy: 0.1},
			want:    []domain.LayerID{domain.LayerMultiRole, domain.LayerPerspective, domain.LayerAmbiguity},
		},
		{
			name:    "entropy opens goal planning and ambiguity",
			signals: domain.Signals{Confidence: 0.99, Entropy: 0.55},
			want:    []domain.LayerID{domain.LayerGoalPlanning, domain.LayerAmbiguity},
		},
		{
			name:    "low confidence fans out to every layer",
			signals: domain.Signals{Confidence: 0.6, Entropy: 0.2},
			want:    domain.GatedLayers(),
		},
		{
			name:    "multirole flag",
			signals: domain.Signals{Confidence: 0.99, Entropy: 0.1, RegulatoryFlags: []string{FlagMultiRole}},
			want:    []domain.LayerID{domain.LayerMultiRole, domain.LayerSectorDeepDive},
		},
		{
			name:    "two triggered roles",
			signals: domain.Signals{Confidence: 0.99, Entropy: 0.1, TriggeredRoles: []string{"regulatory", "compliance"}},
			want:    []domain.LayerID{domain.LayerMultiRole},
		},
		{
			name:    "conflicts open ambiguity",
			signals: domain.Signals{Confidence: 0.99, Entropy: 0.1, ConflictCount: 2},
			want:    []domain.LayerID{domain.LayerAmbiguity},
		},
		{
			name:    "oscillation",
			signals: domain.Signals{Confidence: 0.99, Entropy: 0.1, Flags: []string{FlagConfidenceOscillation}},
			want:    []domain.LayerID{domain.LayerPerspective, domain.LayerRecursive},
		},
		{
			name:    "plateau",
			signals: domain.Signals{Confidence: 0.99, Entropy: 0.1, Flags: []string{FlagConfidencePlateau}},
			want:    []domain.LayerID{domain.LayerSectorDeepDive, domain.LayerGoalPlanning},
		},
		{
			name:    "hallucination drift",
			signals: domain.Signals{Confidence: 0.99, Entropy: 0.1, Flags: []string{FlagHallucinationDrift}},
			want:    []domain.LayerID{domain.LayerSelfAwareness},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(DefaultGatekeeperPolicy(), tt.signals)
			assert.Equal(t, tt.want, d.ActiveLayers())
			for _, id := range tt.want {
				assert.NotEmpty(t, d.Reasons[id])
			}
		})
	}
}

func TestGatekeeper_EntropyHalt(t *testing.T) {
	d := Decide(DefaultGatekeeperPolicy(), domain.Signals{Confidence: 0.5, Entropy: 0.95})
	assert.True(t, d.HaltDueToEntropy)
	assert.False(t, d.RequireRerun, "a halted pass never asks for a rerun")
	assert.True(t, d.Activate[domain.LayerSelfAwareness], "activation is decided independently of the halt")
}

func TestGatekeeper_RerunUsesTarget(t *testing.T) {
	p := DefaultGatekeeperPolicy()
	assert.True(t, Decide(p, domain.Signals{Confidence: 0.9}).RequireRerun)
	assert.False(t, Decide(p, domain.Signals{Confidence: 0.9, TargetConfidence: 0.85}).RequireRerun)
	assert.True(t, Decide(p, domain.Signals{Confidence: 0.84, TargetConfidence: 0.85}).RequireRerun)
}

func TestGatekeeper_DecisionLogIsBounded(t *testing.T) {
	g := NewGatekeeper(DefaultGatekeeperPolicy(), zap.NewNop())
	g.logSize = 3
	for i := 0; i < 10; i++ {
		g.Evaluate(domain.Signals{Confidence: float64(i) / 10})
	}
	log := g.Decisions()
	require.Len(t, log, 3)
	assert.Equal(t, 0.9, log[2].Signals.Confidence)
}

func TestParseGatekeeperPolicy(t *testing.T) {
	p, err := ParseGatekeeperPolicy([]byte(`
halt_entropy: 0.8
recursive:
  confidence_below: 0.6
`))
	require.NoError(t, err)
	assert.Equal(t, 0.8, p.HaltEntropy)
	assert.Equal(t, 0.6, p.Recursive.Confidence)
	assert.Equal(t, 0.95, p.MultiRole.Confidence, "unset keys keep defaults")

	d := Decide(p, domain.Signals{Confidence: 0.7, Entropy: 0.85})
	assert.True(t, d.HaltDueToEntropy)
	assert.False(t, d.Activate[domain.LayerRecursive])

	_, err = ParseGatekeeperPolicy([]byte("halt_entropy: 1.5\n"))
	assert.Error(t, err)
	_, err = ParseGatekeeperPolicy([]byte("halt_entropy: [\n"))
	assert.Error(t, err)
}

func TestLoadGatekeeperPolicy(t *testing.T) {
	p, err := LoadGatekeeperPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultGatekeeperPolicy(), p)

	path := filepath.Join(t.TempDir(), "gatekeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_target: 0.9\n"), 0o600))
	p, err = LoadGatekeeperPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, p.DefaultTarget)

	_, err = LoadGatekeeperPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
