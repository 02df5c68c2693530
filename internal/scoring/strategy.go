package scoring

// FidelityInput feeds a FidelityScorer.
type FidelityInput struct {
	WeightedConfidence float64
	Entropy            float64
	Baseline           float64
	PassNumber         int
}

// FidelityScorer computes the trust fidelity used by ambiguity resolution.
type FidelityScorer interface {
	Fidelity(in FidelityInput) float64
}

// FidelityFunc adapts a function to FidelityScorer.
type FidelityFunc func(in FidelityInput) float64

func (f FidelityFunc) Fidelity(in FidelityInput) float64 { return f(in) }

// HeuristicFidelity is (weighted confidence / entropy anomaly²) · time decay.
type HeuristicFidelity struct {
	DecayRate float64
}

func (h HeuristicFidelity) Fidelity(in FidelityInput) float64 {
	return TrustFidelity(
		in.WeightedConfidence,
		EntropyAnomaly(in.Entropy, in.Baseline),
		TimeDecayFactor(in.PassNumber, h.DecayRate),
	)
}

// EmergenceInput feeds an EmergenceScorer.
type EmergenceInput struct {
	NormalizedEntropy float64
	NormalizedDrift   float64
	ConvergenceScore  float64
}

// EmergenceScorer estimates how far a pass has wandered from convergence.
type EmergenceScorer interface {
	Emergence(in EmergenceInput) float64
}

// BlendedEmergence is a weighted blend of entropy, drift and divergence
// (1 − convergence).
type BlendedEmergence struct {
	EntropyWeight    float64
	DriftWeight      float64
	DivergenceWeight float64
}

func DefaultBlendedEmergence() BlendedEmergence {
	return BlendedEmergence{EntropyWeight: 0.4, DriftWeight: 0.3, DivergenceWeight: 0.3}
}

func (b BlendedEmergence) Emergence(in EmergenceInput) float64 {
	values := []float64{
		Clamp01(in.NormalizedEntropy),
		Clamp01(in.NormalizedDrift),
		Clamp01(1 - in.ConvergenceScore),
	}
	weights := []float64{b.EntropyWeight, b.DriftWeight, b.DivergenceWeight}
	return Clamp01(WeightedAverage(values, weights))
}

// TriggerRatio is triggered/total, 0 when total is 0.
func TriggerRatio(triggered, total int) float64 {
	if total <= 0 {
		return 0
	}
	return Clamp01(float64(triggered) / float64(total))
}
