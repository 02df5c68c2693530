package scoring

import "math"

const (
	DefaultBeliefDecayLambda = 0.05
	// ReinforcedLambdaFactor scales λ for reinforced beliefs.
	ReinforcedLambdaFactor = 0.5
)

// BeliefDecay returns B0·e^{−λt}.
func BeliefDecay(b0, t, lambda float64) float64 {
	return b0 * math.Exp(-lambda*t)
}

// DecayTime maps a pass number to the decay time t = max(1, pass−1).
func DecayTime(passNumber int) float64 {
	return math.Max(1, float64(passNumber-1))
}

// EffectiveLambda halves λ for reinforced beliefs.
func EffectiveLambda(lambda float64, reinforced bool) float64 {
	if reinforced {
		return lambda * ReinforcedLambdaFactor
	}
	return lambda
}

// TimeDecayFactor is the pass-indexed decay used by trust fidelity.
func TimeDecayFactor(passNumber int, rate float64) float64 {
	return math.Exp(-rate * math.Max(0, float64(passNumber-1)))
}
