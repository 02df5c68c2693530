package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionInitialized SessionStatus = "initialized"
	SessionRunning     SessionStatus = "running"
	SessionConverged   SessionStatus = "converged"
	SessionHalted      SessionStatus = "halted"
	SessionCompleted   SessionStatus = "completed"
	SessionError       SessionStatus = "error"
)

// Terminal reports whether no further passes may be appended.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionConverged, SessionHalted, SessionCompleted, SessionError:
		return true
	}
	return false
}

func ValidSessionStatus(s string) bool {
	switch SessionStatus(s) {
	case SessionInitialized, SessionRunning, SessionConverged, SessionHalted, SessionCompleted, SessionError:
		return true
	}
	return false
}

type PassStatus string

const (
	PassCompleted PassStatus = "completed"
	PassDegraded  PassStatus = "degraded"
	PassHalted    PassStatus = "halted"
	PassError     PassStatus = "error"
)

// ConfidenceBreakdown holds per-role confidences and the aggregate for a pass.
type ConfidenceBreakdown struct {
	Roles   map[string]float64 `json:"roles"`
	Overall float64            `json:"overall"`
}

type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepResult records the outcome of one workflow step.
type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Pass is one iteration of the refinement workflow. It is never modified
// after it has been appended to a Session.
type Pass struct {
	Number       int                  `json:"number"`
	Status       PassStatus           `json:"status"`
	Confidence   ConfidenceBreakdown  `json:"confidence"`
	Entropy      float64              `json:"entropy"`
	ActiveLayers []LayerID            `json:"active_layers"`
	Decision     GateDecision         `json:"decision"`
	Flags        []string             `json:"flags,omitempty"`
	Steps        []StepResult         `json:"steps"`
	Layers       []LayerReport        `json:"layers,omitempty"`
	Containment  *ContainmentDecision `json:"containment,omitempty"`
	Synthesis    string               `json:"synthesis,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	EndedAt      time.Time            `json:"ended_at"`
}

// Clone returns a deep copy of p.
func (p Pass) Clone() Pass {
	cp := p
	cp.Confidence.Roles = maps.Clone(p.Confidence.Roles)
	cp.ActiveLayers = slices.Clone(p.ActiveLayers)
	cp.Decision.Activate = maps.Clone(p.Decision.Activate)
	cp.Decision.Reasons = maps.Clone(p.Decision.Reasons)
	cp.Flags = slices.Clone(p.Flags)
	cp.Steps = slices.Clone(p.Steps)
	if p.Layers != nil {
		cp.Layers = make([]LayerReport, len(p.Layers))
		for i, r := range p.Layers {
			r.Metrics = maps.Clone(r.Metrics)
			r.Notes = slices.Clone(r.Notes)
			cp.Layers[i] = r
		}
	}
	if p.Containment != nil {
		c := *p.Containment
		c.Triggers = slices.Clone(c.Triggers)
		cp.Containment = &c
	}
	return cp
}

// FailedSteps returns the number of steps that failed during the pass.
func (p *Pass) FailedSteps() int {
	n := 0
	for _, s := range p.Steps {
		if s.Status == StepFailed {
			n++
		}
	}
	return n
}

type Session struct {
	ID                  uuid.UUID     `json:"id"`
	Query               string        `json:"query"`
	LocationHints       []string      `json:"location_hints,omitempty"`
	TargetConfidence    float64       `json:"target_confidence"`
	MaxPasses           int           `json:"max_passes"`
	Seed                uint64        `json:"seed"`
	Status              SessionStatus `json:"status"`
	Passes              []Pass        `json:"passes"`
	FinalConfidence     float64       `json:"final_confidence"`
	FinalEntropy        float64       `json:"final_entropy"`
	HumanReviewRequired bool          `json:"human_review_required"`
	HaltReason          string        `json:"halt_reason,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// LastPass returns the most recent pass or nil.
func (s *Session) LastPass() *Pass {
	if len(s.Passes) == 0 {
		return nil
	}
	return &s.Passes[len(s.Passes)-1]
}

// Snapshot returns a deep copy of s. Mutating the copy or any of its passes
// leaves s untouched.
func (s *Session) Snapshot() *Session {
	cp := *s
	cp.LocationHints = slices.Clone(s.LocationHints)
	if s.Passes != nil {
		cp.Passes = make([]Pass, len(s.Passes))
		for i := range s.Passes {
			cp.Passes[i] = s.Passes[i].Clone()
		}
	}
	return &cp
}

// SimulationResult is the caller-facing summary of a finished session.
type SimulationResult struct {
	SessionID           uuid.UUID     `json:"session_id"`
	Status              SessionStatus `json:"status"`
	FinalConfidence     float64       `json:"final_confidence"`
	FinalEntropy        float64       `json:"final_entropy"`
	HumanReviewRequired bool          `json:"human_review_required"`
	HaltReason          string        `json:"halt_reason,omitempty"`
	Synthesis           string        `json:"synthesis,omitempty"`
	Passes              []Pass        `json:"passes"`
}
