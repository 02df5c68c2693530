// Package scoring holds the pure confidence and entropy functions shared by
// the gatekeeper, the orchestrator and every layer. None of the scores here
// have a physical or statistical interpretation; they are heuristics that can
// be swapped through the strategy interfaces in strategy.go.
package scoring

import "math"

const (
	MinConfidence = 0.0
	MaxConfidence = 1.0

	// logitEpsilon keeps Logit finite at the edges of [0,1].
	logitEpsilon = 1e-6

	// ReachTolerance absorbs float rounding when a score is compared to a
	// target.
	ReachTolerance = 1e-9
)

// Reaches reports whether score is at least target, within ReachTolerance.
func Reaches(score, target float64) bool {
	return score >= target-ReachTolerance
}

// Clamp01 bounds v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < MinConfidence {
		return MinConfidence
	}
	if v > MaxConfidence {
		return MaxConfidence
	}
	return v
}

func Logit(p float64) float64 {
	p = math.Min(math.Max(p, logitEpsilon), 1-logitEpsilon)
	return math.Log(p / (1 - p))
}

func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// ApplyLogOddsDelta shifts a confidence in log-odds space so repeated nudges
// never leave (0,1).
func ApplyLogOddsDelta(confidence, logOddsDelta float64) float64 {
	return Clamp01(Sigmoid(Logit(confidence) + logOddsDelta))
}

// WeightedAverage returns Σ w·v / Σ w. Pairs with non-positive weight are
// ignored; an empty or zero-weight input yields 0.
func WeightedAverage(values, weights []float64) float64 {
	var sum, wsum float64
	for i, v := range values {
		if i >= len(weights) || weights[i] <= 0 {
			continue
		}
		sum += v * weights[i]
		wsum += weights[i]
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// EuclideanDistance between two vectors. The shorter vector is padded with
// zeros.
func EuclideanDistance(a, b []float64) float64 {
	n := max(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		sum += (x - y) * (x - y)
	}
	return math.Sqrt(sum)
}

// ConfidenceDrift is the distance between the last two confidence vectors of
// history, or 0 when fewer than two exist.
func ConfidenceDrift(history [][]float64) float64 {
	if len(history) < 2 {
		return 0
	}
	return EuclideanDistance(history[len(history)-2], history[len(history)-1])
}

// RecursiveConfidenceWeight is the weight of the pass at index i (0-based).
func RecursiveConfidenceWeight(i int) float64 {
	return 1.0 / (1.0 + 0.1*float64(i))
}

// RecursiveConfidenceScore is the weighted average of pass confidences with
// weight 1/(1+0.1·i), so later passes count slightly less.
func RecursiveConfidenceScore(confidences []float64) float64 {
	weights := make([]float64, len(confidences))
	for i := range confidences {
		weights[i] = RecursiveConfidenceWeight(i)
	}
	return Clamp01(WeightedAverage(confidences, weights))
}

// IdentityConsistencyScore is shared/total, defined as 1 when total is 0.
func IdentityConsistencyScore(shared, total int) float64 {
	if total <= 0 {
		return 1.0
	}
	return Clamp01(float64(shared) / float64(total))
}
