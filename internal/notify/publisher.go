// Package notify forwards containment events and emergence alerts to
// downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const DefaultSubjectPrefix = "refinery"

// NATSPublisher publishes JSON events to
//
//	{prefix}.containment.{session_id}
//	{prefix}.emergence.{session_id}
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

var _ domain.AlertPublisher = (*NATSPublisher)(nil)

func NewNATSPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}
}

// Connect dials NATS with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("refinery"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// ContainmentSubject returns the subject for a session's containment events.
func (p *NATSPublisher) ContainmentSubject(sessionID string) string {
	return fmt.Sprintf("%s.containment.%s", p.prefix, sessionID)
}

// EmergenceSubject returns the subject for a session's emergence alerts.
func (p *NATSPublisher) EmergenceSubject(sessionID string) string {
	return fmt.Sprintf("%s.emergence.%s", p.prefix, sessionID)
}

func (p *NATSPublisher) PublishContainment(ctx context.Context, e domain.ContainmentEvent) error {
	return p.publish(ctx, p.ContainmentSubject(e.SessionID.String()), e)
}

func (p *NATSPublisher) PublishEmergence(ctx context.Context, a domain.EmergenceAlert) error {
	return p.publish(ctx, p.EmergenceSubject(a.SessionID.String()), a)
}

func (p *NATSPublisher) publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("alert published", zap.String("subject", subject))
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

var _ domain.AlertPublisher = NopPublisher{}

func (NopPublisher) PublishContainment(context.Context, domain.ContainmentEvent) error { return nil }
func (NopPublisher) PublishEmergence(context.Context, domain.EmergenceAlert) error { return nil }
