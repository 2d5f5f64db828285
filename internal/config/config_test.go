package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/config"
)

func TestLoad(t *testing.T) {
	t.Run("should load config with defaults", func(t *testing.T) {
		// Clear environment
		os.Clearenv()

		cfg := config.Load()

		require.NotNil(t, cfg)

		// Verify defaults
		require.Equal(t, 8080, cfg.Server.Port)
		require.Equal(t, 30, cfg.Server.ReadTimeout)
		require.Equal(t, 330, cfg.Server.WriteTimeout)
		require.Equal(t, "info", cfg.Log.Level)
		require.Equal(t, 300*time.Second, cfg.Chat.StreamTimeout)
		require.Equal(t, 10*time.Second, cfg.Chat.PersistTimeout)
		require.True(t, cfg.Chat.StreamDefault)
		require.InDelta(t, 12.0, cfg.Billing.RatePerMillion, 1e-9)
		require.Equal(t, 4, cfg.Billing.CharsPerToken)
		require.False(t, cfg.Billing.IncludeLifecycle)
		require.Equal(t, "dify", cfg.Routing.DefaultProvider)
		require.Equal(t, "http://localhost/v1", cfg.Dify.BaseURL)
		require.Equal(t, "chat", cfg.Dify.Mode)
		require.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
		require.Equal(t, 60, cfg.OpenAI.Timeout)
		require.Equal(t, 3, cfg.OpenAI.MaxRetries)
		require.Empty(t, cfg.OpenAI.APIKey)
		require.True(t, cfg.Echo.Enabled)
		require.Equal(t, "sqlite", cfg.Database.Driver)
		require.Empty(t, cfg.Redis.Addr)
		require.Equal(t, 24*time.Hour, cfg.Redis.GuardTTL)
		require.Empty(t, cfg.NATS.URL)
		require.Equal(t, "hearth", cfg.NATS.SubjectPrefix)
	})

	t.Run("should load config from environment variables", func(t *testing.T) {
		// Set environment variables using t.Setenv for automatic cleanup
		t.Setenv("SERVER_PORT", "9000")
		t.Setenv("CHAT_STREAM_TIMEOUT", "45s")
		t.Setenv("CHAT_TEXT_ALIASES", "answer_piece,node_user_message")
		t.Setenv("BILLING_RATE_PER_MILLION", "2.5")
		t.Setenv("BILLING_INCLUDE_LIFECYCLE", "true")
		t.Setenv("ROUTING_AGENT_PROVIDERS", "1:dify,2:openai")
		t.Setenv("DIFY_API_KEY", "app-key")
		t.Setenv("DIFY_MODE", "workflow")
		t.Setenv("DIFY_WORKFLOW_INPUTS", "locale:en,tone:formal")
		t.Setenv("OPENAI_API_KEY", "sk-test-key")
		t.Setenv("OPENAI_MODEL", "gpt-4o")
		t.Setenv("DB_DRIVER", "postgres")
		t.Setenv("DB_DSN", "host=db user=hearth")
		t.Setenv("REDIS_ADDR", "redis:6379")
		t.Setenv("NATS_URL", "nats://nats:4222")

		cfg := config.Load()

		require.NotNil(t, cfg)

		// Verify loaded values
		require.Equal(t, 9000, cfg.Server.Port)
		require.Equal(t, 45*time.Second, cfg.Chat.StreamTimeout)
		require.Equal(t, []string{"answer_piece", "node_user_message"}, cfg.Chat.TextAliases)
		require.InDelta(t, 2.5, cfg.Billing.RatePerMillion, 1e-9)
		require.True(t, cfg.Billing.IncludeLifecycle)
		require.Equal(t, map[string]string{"1": "dify", "2": "openai"}, cfg.Routing.AgentProviders)
		require.Equal(t, "app-key", cfg.Dify.APIKey)
		require.Equal(t, "workflow", cfg.Dify.Mode)
		require.Equal(t, map[string]string{"locale": "en", "tone": "formal"}, cfg.Dify.WorkflowInputs)
		require.Equal(t, "sk-test-key", cfg.OpenAI.APIKey)
		require.Equal(t, "gpt-4o", cfg.OpenAI.Model)
		require.Equal(t, "postgres", cfg.Database.Driver)
		require.Equal(t, "host=db user=hearth", cfg.Database.DSN)
		require.Equal(t, "redis:6379", cfg.Redis.Addr)
		require.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	})
}

func TestParseDependenciesConfig(t *testing.T) {
	cfg := &config.Config{}

	deps := config.ParseDependenciesConfig(cfg)

	require.Same(t, &cfg.Server, deps.ServerConfig)
	require.Same(t, &cfg.Log, deps.LogConfig)
	require.Same(t, &cfg.Routing, deps.Config)
	require.Same(t, &cfg.Dify, deps.Dify)
	require.Same(t, &cfg.Database, deps.Database)
}
