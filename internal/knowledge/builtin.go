package knowledge

import (
	"context"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/scoring"
)

const (
	KeywordSupportID  = "keyword_support"
	SourceDiversityID = "source_diversity"
)

// KeywordSupport measures how many query keywords are backed by at least one
// belief.
type KeywordSupport struct{}

func (KeywordSupport) Execute(ctx context.Context, _ domain.LayerID, _ string, _ int, in domain.AlgorithmInput) (domain.AlgorithmResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.AlgorithmResult{}, err
	}
	keywords := in.Keywords
	if len(keywords) == 0 {
		keywords = scoring.Keywords(in.Query)
	}
	if len(keywords) == 0 || len(in.Beliefs) == 0 {
		return domain.AlgorithmResult{Status: domain.AlgorithmSkipped}, nil
	}

	covered := make(map[string]bool)
	for _, b := range in.Beliefs {
		for _, k := range scoring.Keywords(b.Content) {
			covered[k] = true
		}
	}
	var missing []string
	for _, k := range keywords {
		if !covered[k] {
			missing = append(missing, k)
		}
	}
	coverage := 1 - float64(len(missing))/float64(len(keywords))
	return domain.AlgorithmResult{
		Output: map[string]any{
			"coverage": coverage,
			"missing":  missing,
		},
		Confidence: coverage,
		Status:     domain.AlgorithmOK,
	}, nil
}

// SourceDiversity scores how evenly beliefs are spread across sources.
type SourceDiversity struct{}

func (SourceDiversity) Execute(ctx context.Context, _ domain.LayerID, _ string, _ int, in domain.AlgorithmInput) (domain.AlgorithmResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.AlgorithmResult{}, err
	}
	if len(in.Beliefs) == 0 {
		return domain.AlgorithmResult{Status: domain.AlgorithmSkipped}, nil
	}

	counts := make(map[string]float64)
	var order []string
	for _, b := range in.Beliefs {
		if _, ok := counts[b.Source]; !ok {
			order = append(order, b.Source)
		}
		counts[b.Source]++
	}
	probs := make([]float64, len(order))
	for i, s := range order {
		probs[i] = counts[s]
	}
	diversity := scoring.NormalizedEntropy(probs)
	return domain.AlgorithmResult{
		Output: map[string]any{
			"sources":   len(order),
			"diversity": diversity,
		},
		Confidence: diversity,
		Status:     domain.AlgorithmOK,
	}, nil
}
