package observability_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davidbz/hearth/internal/observability"
)

func TestContext(t *testing.T) {
	t.Run("should round-trip request scoped values", func(t *testing.T) {
		ctx := context.Background()
		ctx = observability.WithTraceID(ctx, "trace")
		ctx = observability.WithRequestID(ctx, "req")
		ctx = observability.WithProvider(ctx, "dify")
		ctx = observability.WithAgentID(ctx, 42)
		ctx = observability.WithConversationID(ctx, "conv")

		require.Equal(t, "trace", observability.GetTraceID(ctx))
		require.Equal(t, "req", observability.GetRequestID(ctx))
		require.Equal(t, "dify", observability.GetProvider(ctx))
		require.Equal(t, int64(42), observability.GetAgentID(ctx))
		require.Equal(t, "conv", observability.GetConversationID(ctx))
	})

	t.Run("should return zero values for an empty context", func(t *testing.T) {
		ctx := context.Background()

		require.Empty(t, observability.GetTraceID(ctx))
		require.Empty(t, observability.GetSpanID(ctx))
		require.Zero(t, observability.GetAgentID(ctx))
	})

	t.Run("should generate hex trace and span ids", func(t *testing.T) {
		require.Len(t, observability.GenerateTraceID(), 32)
		require.Len(t, observability.GenerateSpanID(), 16)
		require.Len(t, observability.GenerateRequestID(), 36)
	})
}

func TestInitLogger(t *testing.T) {
	t.Run("should reject an unknown level", func(t *testing.T) {
		_, err := observability.InitLogger(&observability.LogConfig{Level: "loud"})

		require.Error(t, err)
	})

	t.Run("should write to a rotating file when configured", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "logs", "hearth.log")

		logger, err := observability.InitLogger(&observability.LogConfig{
			Level:      "debug",
			File:       file,
			MaxSizeMB:  1,
			MaxBackups: 1,
		})
		require.NoError(t, err)

		logger.Info("hello")
		require.FileExists(t, file)
	})
}

func TestEventBus_Publish(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	bus := observability.NewEventBus(zap.New(core))

	ctx := observability.WithRequestID(context.Background(), "req-1")
	bus.Publish(ctx, "turn.committed", map[string]interface{}{"conversation_id": "c1"})

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	require.Equal(t, "turn.committed", fields["event_type"])
	require.Equal(t, "c1", fields["conversation_id"])
	require.Equal(t, "req-1", fields["request_id"])
}
