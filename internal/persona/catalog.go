// Package persona supplies the role responses and expert personas consumed by
// the refinement workflow.
package persona

import (
	"context"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/scoring"
)

// Flags a role response may raise.
const (
	FlagRegulatoryReview = "regulatory_review"
	FlagComplianceGap    = "compliance_gap"
	FlagLocationSpecific = "location_specific"
	FlagMultiRole        = "multirole"
)

const (
	hedgePenalty   = 0.06
	maxHedgeHits   = 4
	hintBonus      = 0.04
	maxBeliefTerms = 3
)

var roleBase = map[string]float64{
	domain.RoleKnowledge:  0.84,
	domain.RoleSector:     0.8,
	domain.RoleRegulatory: 0.82,
	domain.RoleCompliance: 0.83,
}

var hedges = []string{"maybe", "might", "unclear", "possibly", "ambiguous", "uncertain", "perhaps", "depends", "unsure", "either"}

var regulatoryTerms = []string{"gdpr", "hipaa", "sox", "pci", "aml", "kyc", "regulation", "regulatory", "regulator", "license", "licence", "sanction", "statute", "law", "directive"}

var complianceTerms = []string{"breach", "violation", "noncompliant", "penalty", "fine", "incident", "audit", "finding"}

// DefaultExperts is the catalog injected by recursive consistency.
func DefaultExperts() []domain.Persona {
	return []domain.Persona{
		{Role: "risk_officer", ConfidenceBase: 0.78, SourceAxis: "risk", Statement: "Residual risk should be quantified before sign off"},
		{Role: "legal_counsel", ConfidenceBase: 0.8, SourceAxis: "legal", Statement: "Contractual obligations must be reviewed against the jurisdiction"},
		{Role: "auditor", ConfidenceBase: 0.76, SourceAxis: "assurance", Statement: "Control evidence must be retained for audit"},
		{Role: "security_engineer", ConfidenceBase: 0.74, SourceAxis: "security", Statement: "Access to sensitive data should be logged and reviewed"},
		{Role: "data_steward", ConfidenceBase: 0.72, SourceAxis: "data", Statement: "Data lineage should be documented for every dataset"},
		{Role: "economist", ConfidenceBase: 0.68, SourceAxis: "markets", Statement: "Compliance cost should be weighed against market exposure"},
		{Role: "ethicist", ConfidenceBase: 0.66, SourceAxis: "ethics", Statement: "Affected parties should be informed of automated decisions"},
	}
}

// Catalog is a deterministic lexical knowledge source. The same query and
// hints always produce the same responses.
type Catalog struct {
	experts []domain.Persona
}

var _ domain.PersonaSource = (*Catalog)(nil)

func NewCatalog() *Catalog {
	return &Catalog{experts: DefaultExperts()}
}

func (c *Catalog) Experts() []domain.Persona {
	return append([]domain.Persona(nil), c.experts...)
}

func (c *Catalog) Respond(ctx context.Context, role, query string, hints []string) (*domain.RoleResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base, ok := roleBase[role]
	if !ok {
		return nil, fmt.Errorf("respond as %q: unknown role", role)
	}

	tokens := scoring.Tokens(query)
	keywords := scoring.Keywords(query)
	hits := min(countAny(tokens, hedges), maxHedgeHits)
	conf := base - hedgePenalty*float64(hits)
	if len(keywords) == 0 {
		conf -= 0.2
	}

	var flags []string
	terms := keywords
	if len(terms) > maxBeliefTerms {
		terms = terms[:maxBeliefTerms]
	}
	subject := strings.Join(terms, ", ")
	if subject == "" {
		subject = "the request"
	}

	var content string
	switch role {
	case domain.RoleKnowledge:
		spans := 0
		if countAny(tokens, regulatoryTerms) > 0 {
			spans++
		}
		if countAny(tokens, complianceTerms) > 0 {
			spans++
		}
		if len(hints) > 0 {
			spans++
		}
		if spans >= 2 {
			flags = append(flags, FlagMultiRole)
		}
		content = fmt.Sprintf("Established guidance on %s is well documented", subject)
	case domain.RoleSector:
		if len(hints) > 0 {
			conf += hintBonus
			flags = append(flags, FlagLocationSpecific)
			content = fmt.Sprintf("Sector practice in %s addresses %s", strings.Join(hints, ", "), subject)
		} else {
			content = fmt.Sprintf("Sector practice commonly addresses %s", subject)
		}
	case domain.RoleRegulatory:
		if countAny(tokens, regulatoryTerms) > 0 {
			flags = append(flags, FlagRegulatoryReview)
			conf -= 0.05
		}
		content = fmt.Sprintf("Regulators expect a documented position on %s", subject)
	case domain.RoleCompliance:
		if countAny(tokens, complianceTerms) > 0 {
			flags = append(flags, FlagComplianceGap)
			conf -= 0.05
		}
		content = fmt.Sprintf("Controls should evidence how %s is handled", subject)
	}
	conf = scoring.Clamp01(conf)

	beliefs := []domain.BeliefDraft{{Content: content, Confidence: conf}}
	for _, h := range hints {
		beliefs = append(beliefs, domain.BeliefDraft{
			Content:    fmt.Sprintf("%s requirements apply in %s", role, h),
			Confidence: scoring.Clamp01(conf - 0.05),
		})
	}
	return &domain.RoleResponse{
		Role:       role,
		Content:    content,
		Confidence: conf,
		Beliefs:    beliefs,
		Flags:      flags,
	}, nil
}

func countAny(tokens, words []string) int {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	n := 0
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}
