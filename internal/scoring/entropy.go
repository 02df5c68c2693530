package scoring

import "math"

// BinaryEntropy is the entropy of a Bernoulli(p) variable in bits, in [0,1].
func BinaryEntropy(p float64) float64 {
	p = Clamp01(p)
	if p == 0 || p == 1 {
		return 0
	}
	return -(p*math.Log2(p) + (1-p)*math.Log2(1-p))
}

// ShannonEntropy is −Σ p·ln(p) over probs normalized to sum to 1. Zero and
// negative entries are skipped.
func ShannonEntropy(probs []float64) float64 {
	var total float64
	for _, p := range probs {
		if p > 0 {
			total += p
		}
	}
	if total == 0 {
		return 0
	}
	var h float64
	for _, p := range probs {
		if p <= 0 {
			continue
		}
		q := p / total
		h -= q * math.Log(q)
	}
	return h
}

// NormalizedEntropy divides ShannonEntropy by ln(n) so the result is in [0,1].
func NormalizedEntropy(probs []float64) float64 {
	n := 0
	for _, p := range probs {
		if p > 0 {
			n++
		}
	}
	if n < 2 {
		return 0
	}
	return Clamp01(ShannonEntropy(probs) / math.Log(float64(n)))
}

// MeanBinaryEntropy averages BinaryEntropy over confidences.
func MeanBinaryEntropy(confidences []float64) float64 {
	if len(confidences) == 0 {
		return 0
	}
	var sum float64
	for _, c := range confidences {
		sum += BinaryEntropy(c)
	}
	return sum / float64(len(confidences))
}
