// Package echo provides a testing provider that echoes back the effective query.
// It implements the domain.Provider interface without making external API calls,
// emitting the same event vocabulary as a real agent provider.
package echo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const providerName = "echo"

// Provider implements the domain.Provider interface for echo testing.
type Provider struct {
	chunkDelay time.Duration
	now        func() time.Time
}

// NewProvider creates a new echo provider.
func NewProvider(config Config) *Provider {
	return &Provider{
		chunkDelay: config.ChunkDelay,
		now:        time.Now,
	}
}

// Chat returns the echoed query as a single reply.
func (p *Provider) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatReply, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	content := req.EffectiveQuery()
	usage := countUsage(content)

	logger.Debug("echo completed",
		observability.Int("prompt_tokens", usage.PromptTokens),
		observability.Int("completion_tokens", usage.CompletionTokens),
	)

	return &domain.ChatReply{
		Text:           content,
		ConversationID: req.ConversationID,
		MessageID:      p.messageID(),
		Usage:          &usage,
	}, nil
}

// ChatStream streams the echoed query word by word, then a message_end carrying usage.
func (p *Provider) ChatStream(ctx context.Context, req *domain.ChatRequest) (<-chan domain.RawChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("streaming echo request")

	content := req.EffectiveQuery()
	messageID := p.messageID()
	conversationID := req.ConversationID

	chunks := make(chan domain.RawChunk)

	go func() {
		defer close(chunks)

		words := strings.Fields(content)
		for i, word := range words {
			delta := word
			if i < len(words)-1 {
				delta += " "
			}

			select {
			case <-ctx.Done():
				return
			case chunks <- domain.RawChunk{Data: messageEvent(conversationID, messageID, delta)}:
			}

			if p.chunkDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.chunkDelay):
				}
			}
		}

		select {
		case chunks <- domain.RawChunk{Data: messageEndEvent(conversationID, messageID, countUsage(content))}:
		case <-ctx.Done():
		}
	}()

	return chunks, nil
}

// History is not kept by the echo provider.
func (p *Provider) History(_ context.Context, _ *domain.HistoryRequest) (json.RawMessage, error) {
	return nil, fmt.Errorf("%s history: %w", providerName, domain.ErrUnsupportedCapability)
}

// DeleteConversation is not offered by the echo provider.
func (p *Provider) DeleteConversation(_ context.Context, _ *domain.HistoryRequest) error {
	return fmt.Errorf("%s delete conversation: %w", providerName, domain.ErrUnsupportedCapability)
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) messageID() string {
	return fmt.Sprintf("echo-%d", p.now().UnixNano())
}

func messageEvent(conversationID, messageID, delta string) []byte {
	raw := []byte(`{"event":"` + domain.EventMessage + `"}`)
	raw, _ = sjson.SetBytes(raw, "conversation_id", conversationID)
	raw, _ = sjson.SetBytes(raw, "message_id", messageID)
	raw, _ = sjson.SetBytes(raw, "answer", delta)
	return raw
}

func messageEndEvent(conversationID, messageID string, usage domain.Usage) []byte {
	raw := []byte(`{"event":"` + domain.EventMessageEnd + `"}`)
	raw, _ = sjson.SetBytes(raw, "conversation_id", conversationID)
	raw, _ = sjson.SetBytes(raw, "id", messageID)
	raw, _ = sjson.SetBytes(raw, "metadata.usage.prompt_tokens", usage.PromptTokens)
	raw, _ = sjson.SetBytes(raw, "metadata.usage.completion_tokens", usage.CompletionTokens)
	raw, _ = sjson.SetBytes(raw, "metadata.usage.total_tokens", usage.TotalTokens)
	return raw
}

// countUsage performs simple word-based token counting. The echo returns the
// same size it was given.
func countUsage(content string) domain.Usage {
	words := len(strings.Fields(content))
	return domain.Usage{
		PromptTokens:     words,
		CompletionTokens: words,
		TotalTokens:      2 * words,
	}
}
