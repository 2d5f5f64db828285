package domain

// EventKind is the semantic class of a normalized provider event.
type EventKind int

const (
	KindOther EventKind = iota
	KindTextDelta
	KindReasoningStep
	KindLifecycle
	KindUsageSummary
	KindFileReference
	KindError
	KindHeartbeat
)

func (k EventKind) String() string {
	switch k {
	case KindTextDelta:
		return "text_delta"
	case KindReasoningStep:
		return "reasoning_step"
	case KindLifecycle:
		return "lifecycle"
	case KindUsageSummary:
		return "usage_summary"
	case KindFileReference:
		return "file_reference"
	case KindError:
		return "error"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "other"
	}
}

// TextBearing reports whether the kind carries a display fragment merged into the outbound content field.
func (k EventKind) TextBearing() bool {
	return k == KindTextDelta || k == KindReasoningStep
}

// NormalizedEvent is one classified provider event. It lives only while it is
// folded and forwarded.
type NormalizedEvent struct {
	Kind EventKind
	// Name is the provider-declared event name.
	Name           string
	Text           string
	ConversationID string
	MessageID      string
	CorrelationID  string
	// Replace marks a text event that supersedes the transcript so far.
	Replace bool
	// FinalText is the output text carried by a terminal lifecycle event.
	FinalText string
	Usage     *Usage
	Reasoning *ReasoningStep
	File      *FileRef
	Err       *EventError
	// Raw is the provider payload, forwarded as-is.
	Raw []byte
	// Metadata is the decoded provider payload.
	Metadata map[string]any
}

// ReasoningStep is an intermediate thought or tool invocation of the upstream agent.
type ReasoningStep struct {
	Thought     string   `json:"thought,omitempty"`
	Tool        string   `json:"tool,omitempty"`
	ToolInput   any      `json:"tool_input,omitempty"`
	Observation string   `json:"observation,omitempty"`
	Files       []string `json:"files,omitempty"`
}

// FileRef is a file attached to an agent message.
type FileRef struct {
	ID        string `json:"id"`
	Type      string `json:"type,omitempty"`
	URL       string `json:"url,omitempty"`
	BelongsTo string `json:"belongs_to,omitempty"`
}

// EventError is a provider-declared stream error.
type EventError struct {
	Status  int    `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ReasoningEntry is a persisted reasoning step merged by tool and tool input.
type ReasoningEntry struct {
	ID          string   `json:"id,omitempty"`
	Thought     string   `json:"thought,omitempty"`
	Tool        string   `json:"tool,omitempty"`
	ToolInput   any      `json:"tool_input,omitempty"`
	Observation string   `json:"observation,omitempty"`
	Files       []string `json:"files,omitempty"`
}
