package domain

import "maps"

// Goal is a planning node produced by goal planning.
type Goal struct {
	ID            string  `json:"id"`
	Content       string  `json:"content"`
	Probability   float64 `json:"probability"`
	Depth         int     `json:"depth"`
	ParentID      string  `json:"parent_id,omitempty"`
	TemporalScope string  `json:"temporal_scope,omitempty"`
}

// Belief is a confidence-weighted assertion owned by the persona that
// produced it and addressable by ID across layers.
type Belief struct {
	ID                 string  `json:"id"`
	Content            string  `json:"content"`
	Confidence         float64 `json:"confidence"`
	OriginalConfidence float64 `json:"original_confidence"`
	Decay              float64 `json:"decay"`
	Source             string  `json:"source"`
	Reinforced         bool    `json:"reinforced,omitempty"`
	ReconciledWith     string  `json:"reconciled_with,omitempty"`
}

type ConflictKind string

const (
	ConflictGoalBelief   ConflictKind = "goal_belief"
	ConflictBeliefBelief ConflictKind = "belief_belief"
)

// Conflict pairs two items that disagree. It is resolved in place.
type Conflict struct {
	ID         string       `json:"id"`
	Kind       ConflictKind `json:"kind"`
	LeftID     string       `json:"left_id"`
	RightID    string       `json:"right_id"`
	Severity   float64      `json:"severity"`
	Resolved   bool         `json:"resolved"`
	Resolution string       `json:"resolution,omitempty"`
}

// Persona is an expert role that can be injected into a session.
type Persona struct {
	Role           string  `json:"role"`
	ConfidenceBase float64 `json:"confidence_base"`
	SourceAxis     string  `json:"source_axis"`
	Statement      string  `json:"statement,omitempty"`
}

// RoleOutput is the merged result of a role-processing step.
type RoleOutput struct {
	Role       string   `json:"role"`
	Response   string   `json:"response"`
	Confidence float64  `json:"confidence"`
	BeliefIDs  []string `json:"belief_ids,omitempty"`
	Flags      []string `json:"flags,omitempty"`
}

// ContainmentAction is the outcome of self-monitoring.
type ContainmentAction string

const (
	ContainmentNone  ContainmentAction = "none"
	ContainmentLimit ContainmentAction = "limit"
	ContainmentHalt  ContainmentAction = "halt"
)

// SelfAssessment is what the self-awareness layer writes back.
type SelfAssessment struct {
	IdentityConsistency float64           `json:"identity_consistency"`
	EmergenceScore      float64           `json:"emergence_score"`
	CriticalEmergence   bool              `json:"critical_emergence"`
	EnergyLimit         float64           `json:"energy_limit"`
	DecayHealth         float64           `json:"decay_health"`
	Heuristics          []string          `json:"heuristics,omitempty"`
	Triggers            []string          `json:"triggers,omitempty"`
	Action              ContainmentAction `json:"action"`
	HumanReviewRequired bool              `json:"human_review_required"`
}

// ReasoningContext is the value threaded through workflow steps and layers.
// Steps and layers never mutate the context they receive; they call Clone and
// return the derived value, so every context is a stable snapshot.
type ReasoningContext struct {
	Version    int      `json:"version"`
	SessionID  string   `json:"session_id"`
	Query      string   `json:"query"`
	Hints      []string `json:"hints,omitempty"`
	Seed       uint64   `json:"seed"`
	PassNumber int      `json:"pass_number"`
	Target     float64  `json:"target"`

	Confidence float64 `json:"confidence"`
	Entropy    float64 `json:"entropy"`
	// ConfidenceHistory holds one per-role confidence vector per completed pass.
	ConfidenceHistory [][]float64 `json:"confidence_history,omitempty"`
	// PassConfidences holds the overall confidence of each completed pass.
	PassConfidences []float64 `json:"pass_confidences,omitempty"`
	BaselineEntropy float64   `json:"baseline_entropy"`

	Keywords  []string              `json:"keywords,omitempty"`
	Roles     map[string]RoleOutput `json:"roles,omitempty"`
	Goals     []Goal                `json:"goals,omitempty"`
	Beliefs   []Belief              `json:"beliefs,omitempty"`
	Conflicts []Conflict            `json:"conflicts,omitempty"`
	Flags     []string              `json:"flags,omitempty"`

	InjectedPersonas []Persona `json:"injected_personas,omitempty"`
	Synthesis        string    `json:"synthesis,omitempty"`
	Coherence        float64   `json:"coherence"`

	EscalateAmbiguity bool `json:"escalate_ambiguity,omitempty"`
	RecursionDepth    int  `json:"recursion_depth"`
	RecursionBudget   int  `json:"recursion_budget"`
	PlateauStreak     int  `json:"plateau_streak"`
	PrevBeliefCount   int  `json:"prev_belief_count"`

	// NewAnchors are anchors observed this pass, committed by the orchestrator.
	NewAnchors []AnchorRecord  `json:"new_anchors,omitempty"`
	Self       *SelfAssessment `json:"self,omitempty"`

	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Clone returns a deep copy with Version incremented.
func (rc *ReasoningContext) Clone() *ReasoningContext {
	cp := *rc
	cp.Version = rc.Version + 1
	cp.Hints = append([]string(nil), rc.Hints...)
	cp.ConfidenceHistory = make([][]float64, len(rc.ConfidenceHistory))
	for i, v := range rc.ConfidenceHistory {
		cp.ConfidenceHistory[i] = append([]float64(nil), v...)
	}
	cp.PassConfidences = append([]float64(nil), rc.PassConfidences...)
	cp.Keywords = append([]string(nil), rc.Keywords...)
	cp.Roles = make(map[string]RoleOutput, len(rc.Roles))
	for k, v := range rc.Roles {
		v.BeliefIDs = append([]string(nil), v.BeliefIDs...)
		v.Flags = append([]string(nil), v.Flags...)
		cp.Roles[k] = v
	}
	cp.Goals = append([]Goal(nil), rc.Goals...)
	cp.Beliefs = append([]Belief(nil), rc.Beliefs...)
	cp.Conflicts = append([]Conflict(nil), rc.Conflicts...)
	cp.Flags = append([]string(nil), rc.Flags...)
	cp.InjectedPersonas = append([]Persona(nil), rc.InjectedPersonas...)
	cp.NewAnchors = append([]AnchorRecord(nil), rc.NewAnchors...)
	if rc.Self != nil {
		self := *rc.Self
		self.Heuristics = append([]string(nil), rc.Self.Heuristics...)
		self.Triggers = append([]string(nil), rc.Self.Triggers...)
		cp.Self = &self
	}
	cp.Metrics = maps.Clone(rc.Metrics)
	if cp.Metrics == nil {
		cp.Metrics = make(map[string]float64)
	}
	return &cp
}

// BeliefByID returns the index of the belief with id, or -1.
func (rc *ReasoningContext) BeliefByID(id string) int {
	for i := range rc.Beliefs {
		if rc.Beliefs[i].ID == id {
			return i
		}
	}
	return -1
}

// HasFlag reports whether flag has been raised in this context.
func (rc *ReasoningContext) HasFlag(flag string) bool {
	for _, f := range rc.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlag appends flag once.
func (rc *ReasoningContext) AddFlag(flag string) {
	if !rc.HasFlag(flag) {
		rc.Flags = append(rc.Flags, flag)
	}
}

// UnresolvedConflicts counts conflicts not yet resolved.
func (rc *ReasoningContext) UnresolvedConflicts() int {
	n := 0
	for _, c := range rc.Conflicts {
		if !c.Resolved {
			n++
		}
	}
	return n
}

// SetMetric records a named scalar on the context.
func (rc *ReasoningContext) SetMetric(name string, v float64) {
	if rc.Metrics == nil {
		rc.Metrics = make(map[string]float64)
	}
	rc.Metrics[name] = v
}
