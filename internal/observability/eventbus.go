package observability

import (
	"context"

	"go.uber.org/zap"
)

// EventBus implements the EventPublisher interface by logging events.
type EventBus struct {
	logger *zap.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		logger: logger,
	}
}

// Publish publishes an event with the given type and data.
func (e *EventBus) Publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if e.logger == nil {
		return
	}

	// Convert map to zap fields.
	fields := make([]zap.Field, 0, len(data)+1)
	fields = append(fields, zap.String("event_type", eventType))
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}

	logger := e.logger
	if requestID := GetRequestID(ctx); requestID != "" {
		logger = logger.With(zap.String("request_id", requestID))
	}

	logger.Info("event published", fields...)
}
