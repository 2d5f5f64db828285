package domain

import (
	"errors"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// AggregatorState is the lifecycle state of a stream aggregate.
type AggregatorState int

const (
	// StateOpen accepts, folds and forwards events.
	StateOpen AggregatorState = iota
	// StateDraining accepts no more events; final figures are being computed.
	StateDraining
	// StateClosed is terminal; the commit has been attempted.
	StateClosed
)

func (s AggregatorState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	default:
		return "closed"
	}
}

var errAggregatorNotOpen = errors.New("aggregator is not accepting events")

// Aggregator folds the normalized events of one stream into a persistable
// record. It is owned by a single goroutine and is not safe for concurrent use.
//
// Events are folded before they are forwarded to the caller, so every event a
// caller observes is already part of the record that will be committed.
type Aggregator struct {
	state AggregatorState
	query string

	transcript strings.Builder
	textEvents int
	finalText  string

	lifecycle      []map[string]any
	lifecycleSeen  map[string]struct{}
	lifecycleChars int

	reasoning    []ReasoningEntry
	reasoningIdx map[string]int

	other []map[string]any

	conversationID string
	messageID      string
	declared       *Usage
	streamErr      *EventError

	eventCount int
	eventTypes map[string]int
}

// NewAggregator creates an open aggregate for the given effective query.
func NewAggregator(query string) *Aggregator {
	return &Aggregator{
		state:         StateOpen,
		query:         query,
		lifecycleSeen: make(map[string]struct{}),
		reasoningIdx:  make(map[string]int),
		eventTypes:    make(map[string]int),
	}
}

// State returns the current state.
func (a *Aggregator) State() AggregatorState {
	return a.state
}

// Fold accumulates one event. An ErrorEvent moves the aggregate to Draining
// after it is recorded.
func (a *Aggregator) Fold(ev *NormalizedEvent) error {
	if a.state != StateOpen {
		return errAggregatorNotOpen
	}

	if ev.Kind == KindHeartbeat {
		return nil
	}

	a.eventCount++
	a.eventTypes[ev.Kind.String()]++

	if a.conversationID == "" {
		a.conversationID = ev.ConversationID
	}
	if a.messageID == "" {
		a.messageID = ev.MessageID
	}
	if ev.Usage.Declared() {
		declared := *ev.Usage
		a.declared = &declared
	}

	switch ev.Kind {
	case KindTextDelta:
		a.foldText(ev)
	case KindReasoningStep:
		a.foldReasoning(ev)
	case KindLifecycle, KindFileReference:
		a.foldLifecycle(ev)
		if ev.FinalText != "" {
			a.finalText = ev.FinalText
		}
	case KindError:
		a.streamErr = ev.Err
		a.state = StateDraining
	case KindUsageSummary:
		// Declared figures were captured above.
	default:
		a.other = append(a.other, ev.Metadata)
	}

	return nil
}

// Drain stops accepting events.
func (a *Aggregator) Drain() {
	if a.state == StateOpen {
		a.state = StateDraining
	}
}

// Close marks the aggregate terminal once its commit was attempted.
func (a *Aggregator) Close() {
	a.state = StateClosed
}

func (a *Aggregator) foldText(ev *NormalizedEvent) {
	a.textEvents++
	if ev.Replace {
		a.transcript.Reset()
	}
	a.transcript.WriteString(ev.Text)
}

func (a *Aggregator) foldLifecycle(ev *NormalizedEvent) {
	key := ev.Name + "\x00" + ev.CorrelationID
	if ev.CorrelationID == "" {
		key = ev.Name + "\x00" + string(ev.Raw)
	}

	if _, seen := a.lifecycleSeen[key]; seen {
		return
	}

	a.lifecycleSeen[key] = struct{}{}
	a.lifecycle = append(a.lifecycle, ev.Metadata)
	a.lifecycleChars += utf8.RuneCount(ev.Raw)
}

func (a *Aggregator) foldReasoning(ev *NormalizedEvent) {
	step := ev.Reasoning
	if step == nil {
		return
	}

	key, keyed := reasoningKey(ev)
	if keyed {
		if idx, exists := a.reasoningIdx[key]; exists {
			mergeReasoning(&a.reasoning[idx], ev.CorrelationID, step)
			return
		}
		a.reasoningIdx[key] = len(a.reasoning)
	}

	entry := ReasoningEntry{}
	mergeReasoning(&entry, ev.CorrelationID, step)
	entry.ToolInput = step.ToolInput
	a.reasoning = append(a.reasoning, entry)
}

// reasoningKey identifies the entry a reasoning step updates: the tool and its
// input when a tool is named, else the provider event id.
func reasoningKey(ev *NormalizedEvent) (string, bool) {
	step := ev.Reasoning
	if step.Tool == "" && step.ToolInput == nil {
		if ev.CorrelationID == "" {
			return "", false
		}
		return "id\x00" + ev.CorrelationID, true
	}

	input, err := json.Marshal(step.ToolInput)
	if err != nil {
		input = []byte{}
	}
	return "tool\x00" + step.Tool + "\x00" + string(input), true
}

func mergeReasoning(entry *ReasoningEntry, id string, step *ReasoningStep) {
	if entry.ID == "" {
		entry.ID = id
	}
	if entry.Tool == "" {
		entry.Tool = step.Tool
	}
	if step.Thought != "" {
		entry.Thought = step.Thought
	}
	if step.Observation != "" {
		entry.Observation = step.Observation
	}
	for _, file := range step.Files {
		if !slices.Contains(entry.Files, file) {
			entry.Files = append(entry.Files, file)
		}
	}
}

// Transcript returns the agent reply text. A stream that produced no text
// events falls back to the output text of its terminal lifecycle event.
func (a *Aggregator) Transcript() string {
	if a.textEvents == 0 && a.finalText != "" {
		return a.finalText
	}
	return a.transcript.String()
}

// ConversationID returns the first upstream conversation id seen.
func (a *Aggregator) ConversationID() string {
	return a.conversationID
}

// MessageID returns the first upstream message or task id seen.
func (a *Aggregator) MessageID() string {
	return a.messageID
}

// StreamError returns the error that ended the stream, if any.
func (a *Aggregator) StreamError() *EventError {
	return a.streamErr
}

// LifecycleEvents returns the deduplicated lifecycle bucket.
func (a *Aggregator) LifecycleEvents() []map[string]any {
	return a.lifecycle
}

// ReasoningEvents returns the merged reasoning bucket.
func (a *Aggregator) ReasoningEvents() []ReasoningEntry {
	return a.reasoning
}

// OtherEvents returns events no rule recognised.
func (a *Aggregator) OtherEvents() []map[string]any {
	return a.other
}

// UsageInput returns the figures the usage estimator works from.
func (a *Aggregator) UsageInput() UsageInput {
	return UsageInput{
		QueryChars:     utf8.RuneCountInString(a.query),
		ResponseChars:  utf8.RuneCountInString(a.Transcript()),
		LifecycleChars: a.lifecycleChars,
		Declared:       a.declared,
	}
}

// Statistics builds the caller-facing summary from the final usage.
func (a *Aggregator) Statistics(usage Usage) *Statistics {
	types := make(map[string]int, len(a.eventTypes))
	for kind, count := range a.eventTypes {
		types[kind] = count
	}

	return &Statistics{
		Event:           EventStatistics,
		EventCount:      a.eventCount,
		EventTypes:      types,
		QueryLength:     utf8.RuneCountInString(a.query),
		ResponseLength:  utf8.RuneCountInString(a.Transcript()),
		LifecycleLength: a.lifecycleChars,
		ProviderTokens:  usage.ProviderTokens,
		InputTokens:     usage.PromptTokens,
		OutputTokens:    usage.CompletionTokens,
		TotalTokens:     usage.TotalTokens,
		Estimated:       usage.Estimated,
		TotalCost:       usage.Cost,
	}
}
