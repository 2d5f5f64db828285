package domain

import (
	"context"
	"encoding/json"
)

// Provider represents an upstream conversational-agent provider.
type Provider interface {
	// Chat sends a blocking request and returns the full reply.
	Chat(ctx context.Context, req *ChatRequest) (*ChatReply, error)

	// ChatStream sends a streaming request and returns raw provider events.
	// The channel is closed once the upstream stream ends or ctx is cancelled.
	ChatStream(ctx context.Context, req *ChatRequest) (<-chan RawChunk, error)

	// History fetches the upstream message history of a conversation.
	History(ctx context.Context, req *HistoryRequest) (json.RawMessage, error)

	// DeleteConversation removes an upstream conversation.
	DeleteConversation(ctx context.Context, req *HistoryRequest) error

	// Name returns the provider identifier.
	Name() string
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(ctx context.Context, provider Provider) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, providerName string) (Provider, error)

	// List returns all available providers.
	List(ctx context.Context) ([]string, error)
}

// Router determines which provider serves a request.
type Router interface {
	// Route selects a provider name for the given agent.
	Route(ctx context.Context, req *RouteRequest) (string, error)
}

// RouteRequest contains criteria for provider selection.
type RouteRequest struct {
	AgentID int64
}

// TurnStore durably stores consolidated turns.
type TurnStore interface {
	// Commit creates or reuses the conversation and inserts the user and agent turns.
	Commit(ctx context.Context, user *UserTurn, agent *AgentTurn) error
}

// EventPublisher publishes events for observability.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}

// EventSink is the caller-facing transport of a streamed response.
type EventSink interface {
	// Send writes one normalized event.
	Send(ctx context.Context, event *NormalizedEvent) error

	// SendStatistics writes the final statistics record.
	SendStatistics(ctx context.Context, stats *Statistics) error

	// Close writes the stream terminator.
	Close(ctx context.Context) error
}
