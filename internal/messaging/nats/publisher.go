// Package nats publishes turn events to NATS subjects.
package nats

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/davidbz/hearth/internal/observability"
)

// MessagePublisher is the subset of *nats.Conn the publisher needs.
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// Envelope is the payload written to each subject.
type Envelope struct {
	Type      string                 `json:"type"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Connect opens a NATS connection with compression enabled.
func Connect(cfg *Config) (*nats.Conn, error) {
	return nats.Connect(cfg.URL, nats.Name(cfg.ClientName), nats.Compression(true))
}

// Publisher implements domain.EventPublisher on top of NATS.
type Publisher struct {
	conn   MessagePublisher
	prefix string
	now    func() time.Time
}

// NewPublisher creates a publisher writing to "<prefix>.<event type>".
func NewPublisher(conn MessagePublisher, prefix string) *Publisher {
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		now:    time.Now,
	}
}

// Publish publishes an event. Failures are logged and never returned.
func (p *Publisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) {
	logger := observability.FromContext(ctx)

	envelope := Envelope{
		Type:      eventType,
		RequestID: observability.GetRequestID(ctx),
		Timestamp: p.now().UTC(),
		Data:      data,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		logger.Error("failed to encode event",
			observability.String("event_type", eventType),
			observability.Error(err),
		)
		return
	}

	subject := p.Subject(eventType)
	if err := p.conn.Publish(subject, payload); err != nil {
		logger.Warn("failed to publish event",
			observability.String("subject", subject),
			observability.Error(err),
		)
		return
	}

	logger.Debug("event published", observability.String("subject", subject))
}

// Subject returns the subject an event type is published on.
func (p *Publisher) Subject(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}
