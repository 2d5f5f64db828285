package echo_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/provider/echo"
)

func newRequest(query string) *domain.ChatRequest {
	return &domain.ChatRequest{
		Query:          &query,
		ConversationID: "c1",
		UserID:         7,
		MerchantID:     3,
		AgentID:        42,
	}
}

func TestNewProvider(t *testing.T) {
	provider := echo.NewProvider(echo.Config{})

	require.NotNil(t, provider)
	require.Equal(t, "echo", provider.Name())
}

func TestChat_Success(t *testing.T) {
	provider := echo.NewProvider(echo.Config{})

	reply, err := provider.Chat(context.Background(), newRequest("Hello world"))

	require.NoError(t, err)
	require.NotNil(t, reply)
	require.Equal(t, "Hello world", reply.Text)
	require.Equal(t, "c1", reply.ConversationID)
	require.NotEmpty(t, reply.MessageID)
	require.Equal(t, 2, reply.Usage.PromptTokens)
	require.Equal(t, 2, reply.Usage.CompletionTokens) // Same as input
	require.Equal(t, 4, reply.Usage.TotalTokens)
}

func TestChat_UsesLastUserTurn(t *testing.T) {
	provider := echo.NewProvider(echo.Config{})
	req := &domain.ChatRequest{
		Turns: []domain.Turn{
			{Role: domain.RoleUser, Content: "first"},
			{Role: domain.RoleUser, Content: "second one"},
			{Role: domain.RoleAgent, Content: "ignored"},
		},
	}

	reply, err := provider.Chat(context.Background(), req)

	require.NoError(t, err)
	require.Equal(t, "second one", reply.Text)
}

func TestChat_NilRequest(t *testing.T) {
	provider := echo.NewProvider(echo.Config{})

	reply, err := provider.Chat(context.Background(), nil)

	require.Error(t, err)
	require.Nil(t, reply)
	require.Contains(t, err.Error(), "request cannot be nil")
}

func TestChatStream_Success(t *testing.T) {
	provider := echo.NewProvider(echo.Config{})

	chunks, err := provider.ChatStream(context.Background(), newRequest("Hello world"))

	require.NoError(t, err)
	require.NotNil(t, chunks)

	var builder strings.Builder
	var events []string

	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		event := gjson.GetBytes(chunk.Data, "event").String()
		events = append(events, event)
		if event == domain.EventMessage {
			require.Equal(t, "c1", gjson.GetBytes(chunk.Data, "conversation_id").String())
			builder.WriteString(gjson.GetBytes(chunk.Data, "answer").String())
		}
	}

	require.Equal(t, []string{"message", "message", "message_end"}, events)
	require.Equal(t, "Hello world", builder.String())
}

func TestChatStream_ClassifiesAsAgentEvents(t *testing.T) {
	provider := echo.NewProvider(echo.Config{})
	classifier := domain.NewClassifier()

	chunks, err := provider.ChatStream(context.Background(), newRequest("one two three"))
	require.NoError(t, err)

	var kinds []domain.EventKind
	var last domain.NormalizedEvent
	for chunk := range chunks {
		ev, ok := classifier.Classify(chunk.Data)
		require.True(t, ok)
		kinds = append(kinds, ev.Kind)
		last = ev
	}

	require.Equal(t, []domain.EventKind{
		domain.KindTextDelta,
		domain.KindTextDelta,
		domain.KindTextDelta,
		domain.KindLifecycle,
	}, kinds)
	require.Equal(t, 6, last.Usage.TotalTokens)
}

func TestChatStream_NilRequest(t *testing.T) {
	provider := echo.NewProvider(echo.Config{})

	chunks, err := provider.ChatStream(context.Background(), nil)

	require.Error(t, err)
	require.Nil(t, chunks)
	require.Contains(t, err.Error(), "request cannot be nil")
}

func TestChatStream_ContextCancellation(t *testing.T) {
	provider := echo.NewProvider(echo.Config{ChunkDelay: 0})
	ctx, cancel := context.WithCancel(context.Background())

	chunks, err := provider.ChatStream(ctx, newRequest("This is a longer message for testing cancellation"))

	require.NoError(t, err)
	require.NotNil(t, chunks)

	<-chunks
	cancel()

	received := 1
	for range chunks {
		received++
	}

	// The word count plus message_end is the upper bound; cancellation stops short of it.
	require.LessOrEqual(t, received, 9)
}

func TestUnsupportedCapabilities(t *testing.T) {
	provider := echo.NewProvider(echo.Config{})
	req := &domain.HistoryRequest{ConversationID: "c1", UserID: 7, AgentID: 42}

	raw, err := provider.History(context.Background(), req)
	require.Nil(t, raw)
	require.ErrorIs(t, err, domain.ErrUnsupportedCapability)

	require.ErrorIs(t, provider.DeleteConversation(context.Background(), req), domain.ErrUnsupportedCapability)
}
