package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContainmentDecision is the supervisor's verdict for a pass.
type ContainmentDecision struct {
	Action              ContainmentAction `json:"action"`
	Triggers            []string          `json:"triggers,omitempty"`
	HumanReviewRequired bool              `json:"human_review_required"`
	Reason              string            `json:"reason,omitempty"`
}

// ContainmentEvent is an append-only log record of a containment action.
type ContainmentEvent struct {
	SessionID  uuid.UUID         `json:"session_id"`
	PassNumber int               `json:"pass_number"`
	Timestamp  time.Time         `json:"timestamp"`
	Triggers   []string          `json:"triggers"`
	Action     ContainmentAction `json:"action"`
	Reason     string            `json:"reason,omitempty"`
}

// EmergenceAlert is an append-only log record raised when emergence
// heuristics fire.
type EmergenceAlert struct {
	SessionID  uuid.UUID         `json:"session_id"`
	PassNumber int               `json:"pass_number"`
	Timestamp  time.Time         `json:"timestamp"`
	Triggers   []string          `json:"triggers"`
	Action     ContainmentAction `json:"action"`
	Score      float64           `json:"score"`
	Critical   bool              `json:"critical"`
}
