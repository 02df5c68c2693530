package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultLimitEscalation is how many consecutive limit actions turn into a halt.
	DefaultLimitEscalation = 3
	// DefaultLimitedRecursionBudget caps layer 9 on the pass after a limit.
	DefaultLimitedRecursionBudget = 2
	// DefaultEventLogSize bounds each in-memory log.
	DefaultEventLogSize = 4096
)

// TriggerEntropyHalt is recorded when the gatekeeper halts a pass.
const TriggerEntropyHalt = "entropy_halt"

// TriggerRepeatedLimit is recorded when limit actions escalate to a halt.
const TriggerRepeatedLimit = "repeated_limit"

// ContainmentSupervisor turns self-awareness assessments and gatekeeper halts
// into containment decisions. It keeps append-only event and alert logs and
// forwards every record to the alert publisher.
type ContainmentSupervisor struct {
	publisher domain.AlertPublisher
	metrics   *Metrics
	logger    *zap.Logger

	LimitEscalation int
	LimitedBudget   int

	mu      sync.Mutex
	events  []domain.ContainmentEvent
	alerts  []domain.EmergenceAlert
	streaks map[uuid.UUID]int
	logSize int
}

func NewContainmentSupervisor(publisher domain.AlertPublisher, logger *zap.Logger) *ContainmentSupervisor {
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	return &ContainmentSupervisor{
		publisher:       publisher,
		metrics:         NewMetrics(),
		logger:          logger,
		LimitEscalation: DefaultLimitEscalation,
		LimitedBudget:   DefaultLimitedRecursionBudget,
		streaks:         make(map[uuid.UUID]int),
		logSize:         DefaultEventLogSize,
	}
}

// Assess decides containment for one pass. A nil assessment means layer 10
// did not run; the decision is none and the limit streak is left as is.
func (c *ContainmentSupervisor) Assess(ctx context.Context, sessionID uuid.UUID, pass int, self *domain.SelfAssessment) domain.ContainmentDecision {
	if self == nil {
		return domain.ContainmentDecision{Action: domain.ContainmentNone}
	}

	d := domain.ContainmentDecision{
		Action:   self.Action,
		Triggers: append([]string(nil), self.Triggers...),
	}
	switch {
	case self.CriticalEmergence:
		d.Action = domain.ContainmentHalt
		d.HumanReviewRequired = true
		d.Reason = fmt.Sprintf("critical emergence %.2f", self.EmergenceScore)
	case d.Action != domain.ContainmentNone:
		d.Reason = "containment triggers: " + strings.Join(d.Triggers, ", ")
	}
	d.HumanReviewRequired = d.HumanReviewRequired || self.HumanReviewRequired

	c.mu.Lock()
	if d.Action == domain.ContainmentLimit {
		c.streaks[sessionID]++
		if c.streaks[sessionID] >= c.LimitEscalation {
			d.Action = domain.ContainmentHalt
			d.Triggers = append(d.Triggers, TriggerRepeatedLimit)
			d.Reason = fmt.Sprintf("limit applied on %d consecutive passes", c.streaks[sessionID])
		}
	} else {
		c.streaks[sessionID] = 0
	}
	c.mu.Unlock()

	if len(self.Heuristics) > 0 {
		c.raiseAlert(ctx, domain.EmergenceAlert{
			SessionID:  sessionID,
			PassNumber: pass,
			Timestamp:  time.Now().UTC(),
			Triggers:   append([]string(nil), self.Heuristics...),
			Action:     d.Action,
			Score:      self.EmergenceScore,
			Critical:   self.CriticalEmergence,
		})
	}
	if d.Action != domain.ContainmentNone {
		c.record(ctx, domain.ContainmentEvent{
			SessionID:  sessionID,
			PassNumber: pass,
			Timestamp:  time.Now().UTC(),
			Triggers:   d.Triggers,
			Action:     d.Action,
			Reason:     d.Reason,
		})
	}
	return d
}

// EntropyHalt records a gatekeeper halt and returns the matching decision.
func (c *ContainmentSupervisor) EntropyHalt(ctx context.Context, sessionID uuid.UUID, pass int, entropy float64) domain.ContainmentDecision {
	d := domain.ContainmentDecision{
		Action:   domain.ContainmentHalt,
		Triggers: []string{TriggerEntropyHalt},
		Reason:   fmt.Sprintf("entropy %.3f above halt threshold", entropy),
	}
	c.record(ctx, domain.ContainmentEvent{
		SessionID:  sessionID,
		PassNumber: pass,
		Timestamp:  time.Now().UTC(),
		Triggers:   d.Triggers,
		Action:     d.Action,
		Reason:     d.Reason,
	})
	return d
}

// Forget drops the limit streak kept for a session.
func (c *ContainmentSupervisor) Forget(sessionID uuid.UUID) {
	c.mu.Lock()
	delete(c.streaks, sessionID)
	c.mu.Unlock()
}

// Events returns containment events, oldest first. uuid.Nil returns every
// session's events.
func (c *ContainmentSupervisor) Events(sessionID uuid.UUID) []domain.ContainmentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.ContainmentEvent
	for _, e := range c.events {
		if sessionID == uuid.Nil || e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}

// Alerts returns emergence alerts, oldest first. uuid.Nil returns all.
func (c *ContainmentSupervisor) Alerts(sessionID uuid.UUID) []domain.EmergenceAlert {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.EmergenceAlert
	for _, a := range c.alerts {
		if sessionID == uuid.Nil || a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out
}

func (c *ContainmentSupervisor) record(ctx context.Context, e domain.ContainmentEvent) {
	c.mu.Lock()
	c.events = append(c.events, e)
	if len(c.events) > c.logSize {
		c.events = c.events[len(c.events)-c.logSize:]
	}
	c.mu.Unlock()

	c.metrics.ContainmentTotal.WithLabelValues(string(e.Action)).Inc()
	c.logger.Warn("containment action",
		zap.String("session_id", e.SessionID.String()),
		zap.Int("pass", e.PassNumber),
		zap.String("action", string(e.Action)),
		zap.Strings("triggers", e.Triggers),
		zap.String("reason", e.Reason))

	if err := c.publisher.PublishContainment(ctx, e); err != nil {
		c.logger.Error("failed to publish containment event",
			zap.String("session_id", e.SessionID.String()),
			zap.Error(err))
	}
}

func (c *ContainmentSupervisor) raiseAlert(ctx context.Context, a domain.EmergenceAlert) {
	c.mu.Lock()
	c.alerts = append(c.alerts, a)
	if len(c.alerts) > c.logSize {
		c.alerts = c.alerts[len(c.alerts)-c.logSize:]
	}
	c.mu.Unlock()

	c.metrics.EmergenceAlerts.Inc()
	c.logger.Info("emergence heuristics fired",
		zap.String("session_id", a.SessionID.String()),
		zap.Int("pass", a.PassNumber),
		zap.Float64("score", a.Score),
		zap.Bool("critical", a.Critical),
		zap.Strings("heuristics", a.Triggers))

	if err := c.publisher.PublishEmergence(ctx, a); err != nil {
		c.logger.Error("failed to publish emergence alert",
			zap.String("session_id", a.SessionID.String()),
			zap.Error(err))
	}
}
