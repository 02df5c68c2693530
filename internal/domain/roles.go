package domain

// Base roles processed by every pass, in merge order.
const (
	RoleKnowledge  = "knowledge"
	RoleSector     = "sector"
	RoleRegulatory = "regulatory"
	RoleCompliance = "compliance"
)

// DefaultInjectedRoleWeight applies to expert personas and unknown sources.
const DefaultInjectedRoleWeight = 0.8

// BaseRoles returns the role-processing order.
func BaseRoles() []string {
	return []string{RoleKnowledge, RoleSector, RoleRegulatory, RoleCompliance}
}

// RoleWeights maps a role to its voting and averaging weight.
type RoleWeights map[string]float64

func DefaultRoleWeights() RoleWeights {
	return RoleWeights{
		RoleKnowledge:  1.0,
		RoleSector:     0.9,
		RoleRegulatory: 1.2,
		RoleCompliance: 1.1,
	}
}

// Weight returns the weight for role, falling back to the injected weight.
func (w RoleWeights) Weight(role string) float64 {
	if v, ok := w[role]; ok && v > 0 {
		return v
	}
	return DefaultInjectedRoleWeight
}
