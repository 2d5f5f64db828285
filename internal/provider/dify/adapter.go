package dify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	providerName = "dify"

	ModeChat     = "chat"
	ModeWorkflow = "workflow"

	responseModeStreaming = "streaming"
	responseModeBlocking  = "blocking"

	chatPath     = "/chat-messages"
	workflowPath = "/workflows/run"
	messagesPath = "/messages"
)

// Provider implements domain.Provider for Dify chat and workflow apps.
type Provider struct {
	client         *Client
	mode           string
	workflowInputs map[string]string
}

// NewProvider creates a new Dify provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("dify API key is required")
	}

	if config.Mode != ModeChat && config.Mode != ModeWorkflow {
		return nil, fmt.Errorf("unknown dify mode %q", config.Mode)
	}

	return &Provider{
		client:         NewClient(config),
		mode:           config.Mode,
		workflowInputs: config.WorkflowInputs,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// Chat sends a blocking request.
func (p *Provider) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatReply, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	path, payload := p.buildPayload(req, responseModeBlocking)

	body, err := p.client.PostJSON(ctx, path, payload)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, &domain.ParseError{Data: body}
	}

	if p.mode == ModeWorkflow {
		return parseWorkflowReply(body), nil
	}
	return parseChatReply(body), nil
}

// ChatStream sends a streaming request and relays the raw SSE payloads.
func (p *Provider) ChatStream(ctx context.Context, req *domain.ChatRequest) (<-chan domain.RawChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	path, payload := p.buildPayload(req, responseModeStreaming)

	observability.FromContext(ctx).Debug("opening dify stream",
		observability.String("path", path),
		observability.String("mode", p.mode),
	)

	return p.client.Stream(ctx, path, payload)
}

// History fetches the upstream messages of a conversation.
func (p *Provider) History(ctx context.Context, req *domain.HistoryRequest) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("conversation_id", req.ConversationID)
	query.Set("user", userKey(req.UserID))

	body, err := p.client.Get(ctx, messagesPath, query)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, &domain.ParseError{Data: body}
	}

	return json.RawMessage(body), nil
}

// DeleteConversation removes an upstream conversation.
func (p *Provider) DeleteConversation(ctx context.Context, req *domain.HistoryRequest) error {
	path := "/conversations/" + url.PathEscape(req.ConversationID)
	return p.client.Delete(ctx, path, map[string]any{"user": userKey(req.UserID)})
}

// buildPayload shapes the request for the configured app mode.
func (p *Provider) buildPayload(req *domain.ChatRequest, responseMode string) (string, map[string]any) {
	query := req.EffectiveQuery()

	payload := map[string]any{
		"response_mode": responseMode,
		"user":          userKey(req.UserID),
	}
	if req.ConversationID != "" {
		payload["conversation_id"] = req.ConversationID
	}

	inputs := make(map[string]any, len(p.workflowInputs)+len(req.Extra)+1)
	if p.mode == ModeWorkflow {
		for key, value := range p.workflowInputs {
			inputs[key] = value
		}
		maps.Copy(inputs, req.Extra)
		inputs["query"] = query
		payload["inputs"] = inputs
		return workflowPath, payload
	}

	maps.Copy(inputs, req.Extra)
	payload["inputs"] = inputs
	payload["query"] = query
	return chatPath, payload
}

func parseChatReply(body []byte) *domain.ChatReply {
	result := gjson.ParseBytes(body)

	reply := &domain.ChatReply{
		Text:           result.Get("answer").String(),
		ConversationID: result.Get("conversation_id").String(),
		MessageID:      result.Get("message_id").String(),
		Usage:          parseUsage(result.Get("metadata.usage")),
	}
	if reply.Usage == nil {
		reply.Usage = parseUsage(result.Get("usage"))
	}
	if metadata, ok := result.Get("metadata").Value().(map[string]any); ok {
		reply.Metadata = metadata
	}

	return reply
}

func parseWorkflowReply(body []byte) *domain.ChatReply {
	result := gjson.ParseBytes(body)
	data := result.Get("data")

	text := data.Get("outputs.text").String()
	if text == "" {
		data.Get("outputs").ForEach(func(_, value gjson.Result) bool {
			if value.Type == gjson.String {
				text = value.String()
				return false
			}
			return true
		})
	}

	conversationID := result.Get("workflow_run_id").String()
	if conversationID == "" {
		conversationID = data.Get("id").String()
	}

	reply := &domain.ChatReply{
		Text:           text,
		ConversationID: conversationID,
		MessageID:      result.Get("task_id").String(),
		Usage:          parseUsage(data),
	}
	if outputs, ok := data.Get("outputs").Value().(map[string]any); ok {
		reply.Metadata = map[string]any{
			"status":  data.Get("status").String(),
			"outputs": outputs,
		}
	}

	return reply
}

// parseUsage reads token figures from a usage-shaped object. Nil when nothing is declared.
func parseUsage(result gjson.Result) *domain.Usage {
	if !result.IsObject() {
		return nil
	}

	usage := &domain.Usage{
		PromptTokens:     max(0, int(result.Get("prompt_tokens").Int())),
		CompletionTokens: max(0, int(result.Get("completion_tokens").Int())),
		TotalTokens:      max(0, int(result.Get("total_tokens").Int())),
	}
	if !usage.Declared() {
		return nil
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return usage
}

func userKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
