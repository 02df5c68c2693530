package scoring

import "math"

const (
	DefaultLayerBlend        = 0.3
	DefaultConflictPenalty   = 0.05
	DefaultConflictEntropy   = 0.08
	DefaultGoalEntropyBlend  = 0.4
	DefaultEnergyCapacity    = 10.0
	DefaultFidelityDecayRate = 0.05
	DefaultEntropyBaseline   = 0.3
)

// Model aggregates per-role and per-layer signals into the pass-level
// confidence and entropy.
type Model struct {
	// LayerBlend is the share of pass confidence contributed by gated layers.
	LayerBlend float64
	// ConflictPenalty is subtracted from confidence per unresolved conflict.
	ConflictPenalty float64
	// ConflictEntropy is added to entropy per unresolved conflict.
	ConflictEntropy float64
	// GoalEntropyBlend is the share of pass entropy taken from goal entropy
	// when goal planning ran.
	GoalEntropyBlend float64
}

func NewModel() *Model {
	return &Model{
		LayerBlend:       DefaultLayerBlend,
		ConflictPenalty:  DefaultConflictPenalty,
		ConflictEntropy:  DefaultConflictEntropy,
		GoalEntropyBlend: DefaultGoalEntropyBlend,
	}
}

// WorkflowConfidence combines role confidences using role weights and
// penalizes unresolved conflicts.
func (m *Model) WorkflowConfidence(roleConfs, roleWeights []float64, unresolved int) float64 {
	base := WeightedAverage(roleConfs, roleWeights)
	return Clamp01(base - m.ConflictPenalty*float64(unresolved))
}

// PassConfidence blends the workflow confidence with the confidences reported
// by gated layers. A failed layer contributes 0. With no layers the workflow
// confidence is returned unchanged. An uncontested pass (no unresolved
// conflicts, no failed layers) never scores below its workflow confidence.
func (m *Model) PassConfidence(workflow float64, layerConfs []float64, contested bool) float64 {
	workflow = Clamp01(workflow)
	if len(layerConfs) == 0 {
		return workflow
	}
	blended := Clamp01((1-m.LayerBlend)*workflow + m.LayerBlend*Mean(layerConfs))
	if !contested && blended < workflow {
		return workflow
	}
	return blended
}

// PassEntropy is the mean binary entropy of role confidences, optionally
// blended with normalized goal entropy, plus a per-conflict increment.
func (m *Model) PassEntropy(roleConfs []float64, goalEntropy float64, haveGoals bool, unresolved int) float64 {
	h := MeanBinaryEntropy(roleConfs)
	if haveGoals {
		h = (1-m.GoalEntropyBlend)*h + m.GoalEntropyBlend*Clamp01(goalEntropy)
	}
	return Clamp01(h + m.ConflictEntropy*float64(unresolved))
}

// EntropyAnomaly is 1 + |entropy − baseline|, always ≥ 1.
func EntropyAnomaly(entropy, baseline float64) float64 {
	return 1 + math.Abs(entropy-baseline)
}

// TrustFidelity is (weightedConfidence / anomaly²) · timeDecay, clamped.
func TrustFidelity(weightedConfidence, anomaly, timeDecay float64) float64 {
	if anomaly <= 0 {
		anomaly = 1
	}
	return Clamp01(weightedConfidence / (anomaly * anomaly) * timeDecay)
}

// EnergyLimit is C / (1 + e^{−(θ−η)}) with θ = max(0, entropy−baseline) and
// η = confidence. It bounds the recursion depth a pass may use.
func EnergyLimit(capacity, entropy, baseline, confidence float64) float64 {
	theta := math.Max(0, entropy-baseline)
	eta := confidence
	return capacity / (1 + math.Exp(-(theta - eta)))
}
