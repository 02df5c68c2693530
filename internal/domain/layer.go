package domain

import "fmt"

// LayerID identifies an escalation layer. Layers 1-3 are the base workflow;
// 4-10 are activated by the gatekeeper.
type LayerID int

const (
	LayerWorkflow       LayerID = 3
	LayerMultiRole      LayerID = 4
	LayerPerspective    LayerID = 5
	LayerSectorDeepDive LayerID = 6
	LayerGoalPlanning   LayerID = 7
	LayerAmbiguity      LayerID = 8
	LayerRecursive      LayerID = 9
	LayerSelfAwareness  LayerID = 10
)

const (
	MinGatedLayer = LayerMultiRole
	MaxGatedLayer = LayerSelfAwareness
)

// GatedLayers lists layers 4..10 in dispatch order.
func GatedLayers() []LayerID {
	ids := make([]LayerID, 0, MaxGatedLayer-MinGatedLayer+1)
	for id := MinGatedLayer; id <= MaxGatedLayer; id++ {
		ids = append(ids, id)
	}
	return ids
}

func (l LayerID) Valid() bool {
	return l >= MinGatedLayer && l <= MaxGatedLayer
}

func (l LayerID) String() string {
	return fmt.Sprintf("layer_%d", int(l))
}

// Signals is the gatekeeper input derived from the previous pass.
type Signals struct {
	Confidence       float64  `json:"confidence"`
	Entropy          float64  `json:"entropy"`
	TargetConfidence float64  `json:"target_confidence,omitempty"`
	TriggeredRoles   []string `json:"triggered_roles,omitempty"`
	RegulatoryFlags  []string `json:"regulatory_flags,omitempty"`
	// Flags are trend and layer flags carried over from earlier passes.
	Flags         []string `json:"flags,omitempty"`
	ConflictCount int      `json:"conflict_count"`
}

// HasFlag reports whether flag is present in Flags or RegulatoryFlags.
func (s Signals) HasFlag(flag string) bool {
	for _, f := range s.Flags {
		if f == flag {
			return true
		}
	}
	for _, f := range s.RegulatoryFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// GateDecision is the gatekeeper output. Activate is decided once per pass.
type GateDecision struct {
	Activate         map[LayerID]bool   `json:"activate"`
	HaltDueToEntropy bool               `json:"halt_due_to_entropy"`
	RequireRerun     bool               `json:"require_rerun"`
	Reasons          map[LayerID]string `json:"reasons,omitempty"`
}

// ActiveLayers returns activated layers in ascending order.
func (d GateDecision) ActiveLayers() []LayerID {
	var ids []LayerID
	for _, id := range GatedLayers() {
		if d.Activate[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

type LayerStatus string

const (
	LayerCompleted LayerStatus = "completed"
	LayerSkipped   LayerStatus = "skipped"
	LayerFailed    LayerStatus = "failed"
)

// LayerReport summarises one layer invocation within a pass.
type LayerReport struct {
	Layer      LayerID            `json:"layer"`
	Name       string             `json:"name"`
	Status     LayerStatus        `json:"status"`
	Confidence float64            `json:"confidence"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Notes      []string           `json:"notes,omitempty"`
	Error      string             `json:"error,omitempty"`
}
