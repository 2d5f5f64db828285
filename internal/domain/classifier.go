package domain

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Provider event names with a fixed meaning.
const (
	EventMessage          = "message"
	EventAgentMessage     = "agent_message"
	EventTextChunk        = "text_chunk"
	EventMessageReplace   = "message_replace"
	EventAgentThought     = "agent_thought"
	EventMessageEnd       = "message_end"
	EventMessageFile      = "message_file"
	EventTTSMessageEnd    = "tts_message_end"
	EventWorkflowFinished = "workflow_finished"
	EventNameError        = "error"
	EventPing             = "ping"
	EventStatistics       = "statistics"
)

// eventRule is one (predicate, constructor) pair of the classification table.
type eventRule struct {
	name  string
	kind  EventKind
	match func(eventName string) bool
	build func(ev *NormalizedEvent, payload gjson.Result)
}

// Classifier maps raw provider events onto normalized events.
// Rules are evaluated in table order and the first match wins; exact-name
// rules precede the substring and shape rules.
type Classifier struct {
	rules     []eventRule
	textNames map[string]struct{}
}

// ClassifierOption customizes a Classifier.
type ClassifierOption func(*Classifier)

// WithTextAliases registers additional provider event names that always carry text.
func WithTextAliases(aliases ...string) ClassifierOption {
	return func(c *Classifier) {
		for _, alias := range aliases {
			alias = strings.TrimSpace(alias)
			if alias != "" {
				c.textNames[alias] = struct{}{}
			}
		}
	}
}

// NewClassifier creates a classifier with the standard rule table.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		textNames: map[string]struct{}{
			EventMessage:        {},
			EventAgentMessage:   {},
			EventTextChunk:      {},
			EventMessageReplace: {},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.rules = []eventRule{
		{name: "text", kind: KindTextDelta, match: c.isTextName, build: buildText},
		{name: "reasoning", kind: KindReasoningStep, match: exact(EventAgentThought, "thought", "reasoning"), build: buildReasoning},
		{name: "usage", kind: KindUsageSummary, match: exact("usage", "usage_summary", "summary"), build: buildNothing},
		{name: "error", kind: KindError, match: exact(EventNameError), build: buildError},
		{name: "heartbeat", kind: KindHeartbeat, match: exact(EventPing, "heartbeat", "keepalive"), build: buildNothing},
		{name: "file", kind: KindFileReference, match: exact(EventMessageFile), build: buildFile},
		{name: "terminal", kind: KindLifecycle, match: exact(EventMessageEnd, EventTTSMessageEnd, EventWorkflowFinished), build: buildLifecycle},
		{name: "delta", kind: KindTextDelta, match: isDeltaShaped, build: buildText},
		{name: "lifecycle", kind: KindLifecycle, match: isLifecycleName, build: buildLifecycle},
		{name: "text_alias", kind: KindTextDelta, match: isTextShaped, build: buildText},
	}

	return c
}

// RuleOrder returns the rule names in evaluation order.
func (c *Classifier) RuleOrder() []string {
	names := make([]string, 0, len(c.rules))
	for _, rule := range c.rules {
		names = append(names, rule.name)
	}
	return names
}

// Classify decodes one raw provider event. It returns false when the chunk
// cannot be decoded or names no event; such chunks are dropped.
func (c *Classifier) Classify(raw []byte) (NormalizedEvent, bool) {
	if !gjson.ValidBytes(raw) {
		return NormalizedEvent{}, false
	}

	payload := gjson.ParseBytes(raw)
	if !payload.IsObject() {
		return NormalizedEvent{}, false
	}

	name := payload.Get("event").String()
	if name == "" {
		return NormalizedEvent{}, false
	}

	ev := NormalizedEvent{
		Kind:           KindOther,
		Name:           name,
		ConversationID: firstString(payload, "conversation_id", "workflow_run_id"),
		MessageID:      firstString(payload, "message_id", "task_id"),
		CorrelationID:  firstString(payload, "data.id", "id", "message_id"),
		Usage:          extractUsage(payload),
		Raw:            raw,
	}

	if metadata, ok := payload.Value().(map[string]interface{}); ok {
		ev.Metadata = metadata
	}

	for _, rule := range c.rules {
		if rule.match(name) {
			ev.Kind = rule.kind
			rule.build(&ev, payload)
			return ev, true
		}
	}

	return ev, true
}

func (c *Classifier) isTextName(name string) bool {
	_, ok := c.textNames[name]
	return ok
}

func exact(names ...string) func(string) bool {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return func(name string) bool {
		_, ok := set[name]
		return ok
	}
}

func isLifecycleName(name string) bool {
	return strings.Contains(name, "workflow") || strings.Contains(name, "node")
}

// isDeltaShaped matches incremental text names such as node_text_delta.
func isDeltaShaped(name string) bool {
	return strings.HasSuffix(name, "_delta") || strings.HasSuffix(name, "_chunk")
}

func isTextShaped(name string) bool {
	for _, prefix := range []string{"message", "text", "chunk"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func buildNothing(_ *NormalizedEvent, _ gjson.Result) {}

func buildText(ev *NormalizedEvent, payload gjson.Result) {
	ev.Text = firstString(payload, "answer", "text", "data.text", "content", "data.content", "delta", "message")
	ev.Replace = ev.Name == EventMessageReplace
}

func buildReasoning(ev *NormalizedEvent, payload gjson.Result) {
	step := &ReasoningStep{
		Thought:     payload.Get("thought").String(),
		Tool:        payload.Get("tool").String(),
		ToolInput:   decodeToolInput(payload.Get("tool_input")),
		Observation: payload.Get("observation").String(),
	}

	for _, file := range payload.Get("message_files").Array() {
		if file.IsObject() {
			step.Files = append(step.Files, file.Get("id").String())
			continue
		}
		step.Files = append(step.Files, file.String())
	}

	ev.Reasoning = step
	ev.Text = step.Thought
	if ev.Text == "" {
		ev.Text = step.Observation
	}
}

// decodeToolInput keeps undecodable tool input as the raw string. Blank input
// is treated as absent.
func decodeToolInput(input gjson.Result) any {
	switch {
	case !input.Exists():
		return nil
	case input.Type == gjson.String:
		raw := input.String()
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return nil
		}
		if gjson.Valid(trimmed) {
			return gjson.Parse(trimmed).Value()
		}
		return raw
	default:
		return input.Value()
	}
}

func buildError(ev *NormalizedEvent, payload gjson.Result) {
	ev.Err = &EventError{
		Status:  int(payload.Get("status").Int()),
		Code:    payload.Get("code").String(),
		Message: payload.Get("message").String(),
	}
}

func buildFile(ev *NormalizedEvent, payload gjson.Result) {
	ev.File = &FileRef{
		ID:        payload.Get("id").String(),
		Type:      payload.Get("type").String(),
		URL:       payload.Get("url").String(),
		BelongsTo: payload.Get("belongs_to").String(),
	}
	ev.CorrelationID = ev.File.ID
}

func buildLifecycle(ev *NormalizedEvent, payload gjson.Result) {
	if ev.Name != EventWorkflowFinished {
		return
	}

	outputs := payload.Get("data.outputs")
	if !outputs.IsObject() {
		return
	}

	if text := outputs.Get("text"); text.Type == gjson.String && text.String() != "" {
		ev.FinalText = text.String()
		return
	}

	outputs.ForEach(func(_, value gjson.Result) bool {
		if value.Type == gjson.String {
			ev.FinalText = value.String()
			return false
		}
		return true
	})
}

func firstString(payload gjson.Result, paths ...string) string {
	for _, path := range paths {
		if value := payload.Get(path); value.Type == gjson.String && value.String() != "" {
			return value.String()
		}
	}
	return ""
}

func extractUsage(payload gjson.Result) *Usage {
	for _, path := range []string{"usage", "metadata.usage", "data.usage", "data"} {
		if usage := usageFrom(payload.Get(path)); usage != nil {
			return usage
		}
	}
	return usageFrom(payload)
}

func usageFrom(node gjson.Result) *Usage {
	if !node.IsObject() {
		return nil
	}

	total := node.Get("total_tokens")
	prompt := node.Get("prompt_tokens")
	completion := node.Get("completion_tokens")
	if !total.Exists() && !prompt.Exists() && !completion.Exists() {
		return nil
	}

	usage := &Usage{
		PromptTokens:     max(0, int(prompt.Int())),
		CompletionTokens: max(0, int(completion.Int())),
		TotalTokens:      max(0, int(total.Int())),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	if !usage.Declared() {
		return nil
	}

	return usage
}
