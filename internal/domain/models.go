package domain

import (
	"strings"
	"time"
)

// Turn roles recognised by the request model.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Turn is one role-tagged entry of a conversation supplied by the caller.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a normalized chat request from a tenant application.
// Query is a pointer so an explicitly blank query can be told apart from an absent one.
type ChatRequest struct {
	Query          *string        `json:"query,omitempty"`
	Turns          []Turn         `json:"turns,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	UserID         int64          `json:"user_id"`
	MerchantID     int64          `json:"merchant_id"`
	AgentID        int64          `json:"agent_id"`
	Extra          map[string]any `json:"extra,omitempty"`
	Stream         *bool          `json:"stream,omitempty"`

	// RequestID correlates the request across logs and persistence retries.
	RequestID string `json:"-"`
}

// EffectiveQuery returns the query text sent upstream: the query when present,
// else the last user-authored turn, else the last turn.
func (r *ChatRequest) EffectiveQuery() string {
	if r.Query != nil && strings.TrimSpace(*r.Query) != "" {
		return *r.Query
	}

	for i := len(r.Turns) - 1; i >= 0; i-- {
		if r.Turns[i].Role == RoleUser {
			return r.Turns[i].Content
		}
	}

	if len(r.Turns) > 0 {
		return r.Turns[len(r.Turns)-1].Content
	}

	return ""
}

// WantsStream reports whether the caller asked for a streamed response.
func (r *ChatRequest) WantsStream(defaultStream bool) bool {
	if r.Stream == nil {
		return defaultStream
	}
	return *r.Stream
}

// ChatReply is the single structured reply of a blocking provider call.
type ChatReply struct {
	Text           string         `json:"text"`
	ConversationID string         `json:"conversation_id,omitempty"`
	MessageID      string         `json:"message_id,omitempty"`
	Usage          *Usage         `json:"usage,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// RawChunk is one undecoded provider stream record, or a terminal transport error.
type RawChunk struct {
	Data []byte
	Err  error
}

// HistoryRequest identifies an upstream conversation for history and delete calls.
type HistoryRequest struct {
	ConversationID string
	UserID         int64
	AgentID        int64
}

// Usage tracks token consumption and cost.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
	// ProviderTokens is the provider-declared total, zero when the figure was estimated.
	ProviderTokens int  `json:"provider_tokens"`
	Estimated      bool `json:"estimated"`
}

// Declared reports whether the usage carries an authoritative token figure.
func (u *Usage) Declared() bool {
	return u != nil && (u.TotalTokens > 0 || u.PromptTokens > 0 || u.CompletionTokens > 0)
}

// Stream outcomes recorded on the agent turn.
const (
	OutcomeCompleted = "completed"
	OutcomeErrored   = "errored"
	OutcomeCancelled = "cancelled"
)

// UserTurn is the persisted caller side of a consolidated turn.
type UserTurn struct {
	ConversationID string
	RequestID      string
	UserID         int64
	MerchantID     int64
	AgentID        int64
	Content        string
	CreatedAt      time.Time
}

// AgentTurn is the persisted agent side of a consolidated turn.
type AgentTurn struct {
	ConversationID         string
	UpstreamConversationID string
	UpstreamMessageID      string
	Provider               string
	Content                string
	LifecycleEvents        []map[string]any
	ReasoningEvents        []ReasoningEntry
	OtherEvents            []map[string]any
	Usage                  Usage
	Outcome                string
	Error                  string
	CreatedAt              time.Time
}

// Statistics is the caller-facing summary emitted once before the stream terminator.
type Statistics struct {
	Event           string         `json:"event"`
	EventCount      int            `json:"event_count"`
	EventTypes      map[string]int `json:"event_types"`
	QueryLength     int            `json:"query_length"`
	ResponseLength  int            `json:"response_length"`
	LifecycleLength int            `json:"lifecycle_length"`
	ProviderTokens  int            `json:"provider_tokens"`
	InputTokens     int            `json:"input_tokens"`
	OutputTokens    int            `json:"output_tokens"`
	TotalTokens     int            `json:"total_tokens"`
	Estimated       bool           `json:"estimated"`
	TotalCost       float64        `json:"total_cost"`
}

// ChatResult is the synthesized final record returned to non-streaming callers.
type ChatResult struct {
	Event          string         `json:"event"`
	Content        string         `json:"content"`
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id,omitempty"`
	Provider       string         `json:"provider"`
	Usage          Usage          `json:"usage"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	FinishTime     time.Time      `json:"finish_time"`
}
