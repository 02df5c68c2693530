package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntryType string

const (
	EntrySessionStarted  EntryType = "session_started"
	EntryPassStarted     EntryType = "pass_started"
	EntryGateDecision    EntryType = "gate_decision"
	EntryStepCompleted   EntryType = "step_completed"
	EntryStepFailed      EntryType = "step_failed"
	EntryLayerCompleted  EntryType = "layer_completed"
	EntryLayerFailed     EntryType = "layer_failed"
	EntryAlgorithm       EntryType = "algorithm_result"
	EntryContainment     EntryType = "containment"
	EntryPassCompleted   EntryType = "pass_completed"
	EntrySessionFinished EntryType = "session_finished"
)

// MemoryEntry is one audit record. SessionID, PassNum, LayerNum and EntryType
// are always populated; LayerNum is 0 for session-level entries.
type MemoryEntry struct {
	ID         int64     `json:"id,omitempty"`
	SessionID  uuid.UUID `json:"session_id"`
	EntryType  EntryType `json:"entry_type"`
	PassNum    int       `json:"pass_num"`
	LayerNum   int       `json:"layer_num"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}
