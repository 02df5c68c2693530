package persona

import (
	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/scoring"
)

const (
	estimatorBase        = 0.9
	estimatorHedgeWeight = 0.1
	estimatorThinQuery   = 0.15
	minQueryKeywords     = 2
)

// LexicalEstimator scores a query before any pass has run. Hedge words lower
// the confidence estimate and raise entropy; regulatory and compliance terms
// surface as flags.
type LexicalEstimator struct{}

var _ domain.SignalEstimator = LexicalEstimator{}

func (LexicalEstimator) Estimate(query string, hints []string) domain.Signals {
	tokens := scoring.Tokens(query)
	hits := min(countAny(tokens, hedges), maxHedgeHits)

	conf := estimatorBase - estimatorHedgeWeight*float64(hits)
	if len(scoring.Keywords(query)) < minQueryKeywords {
		conf -= estimatorThinQuery
	}
	conf = scoring.Clamp01(conf)
	entropy := scoring.Clamp01(0.5*scoring.BinaryEntropy(conf) + estimatorHedgeWeight*float64(hits))

	s := domain.Signals{Confidence: conf, Entropy: entropy}
	if countAny(tokens, regulatoryTerms) > 0 {
		s.RegulatoryFlags = append(s.RegulatoryFlags, FlagRegulatoryReview)
		s.TriggeredRoles = append(s.TriggeredRoles, domain.RoleRegulatory)
	}
	if countAny(tokens, complianceTerms) > 0 {
		s.RegulatoryFlags = append(s.RegulatoryFlags, FlagComplianceGap)
		s.TriggeredRoles = append(s.TriggeredRoles, domain.RoleCompliance)
	}
	if len(hints) > 0 {
		s.TriggeredRoles = append(s.TriggeredRoles, domain.RoleSector)
	}
	return s
}
