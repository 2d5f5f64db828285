// Package openai provides an adapter for the OpenAI API using the official SDK.
// Chat-completions chunks are re-shaped into the agent event vocabulary
// (message / message_end) so the relay treats every provider alike.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/sjson"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const providerName = "openai"

// Provider implements the domain.Provider interface for OpenAI.
type Provider struct {
	client       openai.Client
	model        string
	systemPrompt string
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	if config.Model == "" {
		return nil, errors.New("OpenAI model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	opts = append(opts, option.WithMaxRetries(config.MaxRetries))

	return &Provider{
		client:       openai.NewClient(opts...),
		model:        config.Model,
		systemPrompt: config.SystemPrompt,
	}, nil
}

// Chat sends a blocking completion request.
func (p *Provider) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatReply, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API")

	resp, err := p.client.Chat.Completions.New(ctx, p.toSDKParams(req))
	if err != nil {
		logger.Error("OpenAI API call failed", observability.Error(err))
		return nil, toDomainError(err)
	}

	logger.Debug("OpenAI API call succeeded",
		observability.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		observability.Int("completion_tokens", int(resp.Usage.CompletionTokens)),
	)

	reply := &domain.ChatReply{
		MessageID: resp.ID,
		Metadata:  map[string]any{"model": resp.Model},
	}
	if len(resp.Choices) > 0 {
		reply.Text = resp.Choices[0].Message.Content
		reply.Metadata["finish_reason"] = resp.Choices[0].FinishReason
	}
	if resp.Usage.TotalTokens > 0 {
		reply.Usage = &domain.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
	}

	return reply, nil
}

// ChatStream sends a streaming completion request. Each content delta becomes a
// "message" event and the trailing usage chunk becomes "message_end".
func (p *Provider) ChatStream(ctx context.Context, req *domain.ChatRequest) (<-chan domain.RawChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI streaming API")

	params := p.toSDKParams(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	chunks := make(chan domain.RawChunk)

	go func() {
		defer close(chunks)
		defer stream.Close()
		defer logger.Debug("OpenAI stream completed")

		send := func(chunk domain.RawChunk) bool {
			select {
			case chunks <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for stream.Next() {
			chunk := stream.Current()

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if !send(domain.RawChunk{Data: messageEvent(chunk.ID, chunk.Choices[0].Delta.Content)}) {
					return
				}
			}

			if chunk.Usage.TotalTokens > 0 {
				usage := domain.Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
				if !send(domain.RawChunk{Data: messageEndEvent(chunk.ID, usage)}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			send(domain.RawChunk{Err: toDomainError(err)})
		}
	}()

	return chunks, nil
}

// History is not offered by chat completions.
func (p *Provider) History(_ context.Context, _ *domain.HistoryRequest) (json.RawMessage, error) {
	return nil, fmt.Errorf("%s history: %w", providerName, domain.ErrUnsupportedCapability)
}

// DeleteConversation is not offered by chat completions.
func (p *Provider) DeleteConversation(_ context.Context, _ *domain.HistoryRequest) error {
	return fmt.Errorf("%s delete conversation: %w", providerName, domain.ErrUnsupportedCapability)
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// toSDKParams converts the caller turns into chat-completions messages. A
// query, when present, is sent as the final user message.
func (p *Provider) toSDKParams(req *domain.ChatRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns)+2)

	if p.systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(p.systemPrompt))
	}

	for _, turn := range req.Turns {
		switch turn.Role {
		case domain.RoleAgent:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	if req.Query != nil {
		messages = append(messages, openai.UserMessage(*req.Query))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
	}
	if req.UserID > 0 {
		params.User = openai.String(strconv.FormatInt(req.UserID, 10))
	}

	return params
}

func messageEvent(id, delta string) []byte {
	raw := []byte(`{"event":"` + domain.EventMessage + `"}`)
	raw, _ = sjson.SetBytes(raw, "message_id", id)
	raw, _ = sjson.SetBytes(raw, "answer", delta)
	return raw
}

func messageEndEvent(id string, usage domain.Usage) []byte {
	raw := []byte(`{"event":"` + domain.EventMessageEnd + `"}`)
	raw, _ = sjson.SetBytes(raw, "id", id)
	raw, _ = sjson.SetBytes(raw, "message_id", id)
	raw, _ = sjson.SetBytes(raw, "metadata.usage.prompt_tokens", usage.PromptTokens)
	raw, _ = sjson.SetBytes(raw, "metadata.usage.completion_tokens", usage.CompletionTokens)
	raw, _ = sjson.SetBytes(raw, "metadata.usage.total_tokens", usage.TotalTokens)
	return raw
}

// toDomainError maps SDK failures onto the upstream error taxonomy.
func toDomainError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &domain.UpstreamError{Provider: providerName, Status: apiErr.StatusCode, Body: apiErr.Message}
	}
	return &domain.TransportError{Provider: providerName, Err: err}
}
