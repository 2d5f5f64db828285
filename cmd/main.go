package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/cache/redis"
	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/http"
	"github.com/davidbz/hearth/internal/http/middleware"
	"github.com/davidbz/hearth/internal/messaging/nats"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/provider/dify"
	"github.com/davidbz/hearth/internal/provider/echo"
	"github.com/davidbz/hearth/internal/provider/openai"
	"github.com/davidbz/hearth/internal/provider/registry"
	"github.com/davidbz/hearth/internal/routing"
	"github.com/davidbz/hearth/internal/storage/gormstore"
)

const shutdownTimeout = 30 * time.Second

// ErrProviderNotConfigured indicates that a provider is not configured and should be skipped.
var ErrProviderNotConfigured = errors.New("provider not configured")

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server, store *gormstore.Store, logger *zap.Logger) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", observability.Error(err))
		}
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", observability.Error(err))
		}
		_ = logger.Sync()

		return nil
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	// Initialise the global logger before anything logs through the context.
	if err := container.Invoke(func(*zap.Logger) {}); err != nil {
		log.Fatalf("Failed to initialise logger: %v", err)
	}

	provideProviders(container)
	provideInfrastructure(container)

	// Domain Services
	if err := container.Provide(func(chat *config.ChatConfig) *domain.Classifier {
		return domain.NewClassifier(domain.WithTextAliases(chat.TextAliases...))
	}); err != nil {
		log.Fatalf("Failed to provide classifier: %v", err)
	}
	if err := container.Provide(func(billing *config.BillingConfig) *domain.UsageEstimator {
		return domain.NewUsageEstimator(billing.RatePerMillion,
			domain.WithCharsPerToken(billing.CharsPerToken),
			domain.WithLifecycleFolding(billing.IncludeLifecycle),
		)
	}); err != nil {
		log.Fatalf("Failed to provide usage estimator: %v", err)
	}
	if err := container.Provide(func(chat *config.ChatConfig) domain.ChatSettings {
		return domain.ChatSettings{
			StreamTimeout:  chat.StreamTimeout,
			PersistTimeout: chat.PersistTimeout,
		}
	}); err != nil {
		log.Fatalf("Failed to provide chat settings: %v", err)
	}
	if err := container.Provide(domain.NewChatService); err != nil {
		log.Fatalf("Failed to provide chat service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// provideProviders builds the provider registry and routing table. Providers
// without configuration are skipped.
func provideProviders(container *dig.Container) {
	// Provider Registry
	if err := container.Provide(func() domain.ProviderRegistry {
		return registry.NewRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// Dify Provider
	if err := container.Provide(func(cfg *dify.Config) (*dify.Provider, error) {
		if cfg.APIKey == "" {
			return nil, ErrProviderNotConfigured
		}
		return dify.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide Dify provider: %v", err)
	}

	// OpenAI Provider
	if err := container.Provide(func(cfg *openai.Config) (*openai.Provider, error) {
		if cfg.APIKey == "" {
			return nil, ErrProviderNotConfigured
		}
		return openai.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide OpenAI provider: %v", err)
	}

	// Echo Provider
	if err := container.Provide(func(cfg *echo.Config) (*echo.Provider, error) {
		if !cfg.Enabled {
			return nil, ErrProviderNotConfigured
		}
		return echo.NewProvider(*cfg), nil
	}); err != nil {
		log.Fatalf("Failed to provide echo provider: %v", err)
	}

	// Register providers with registry (invoked for side effects)
	register(container, "Dify", func(reg domain.ProviderRegistry, p *dify.Provider) error {
		return reg.Register(context.Background(), p)
	})
	register(container, "OpenAI", func(reg domain.ProviderRegistry, p *openai.Provider) error {
		return reg.Register(context.Background(), p)
	})
	register(container, "echo", func(reg domain.ProviderRegistry, p *echo.Provider) error {
		return reg.Register(context.Background(), p)
	})

	// Routing
	if err := container.Provide(func(reg domain.ProviderRegistry, cfg *routing.Config) (domain.Router, error) {
		return routing.NewRouter(reg, cfg)
	}); err != nil {
		log.Fatalf("Failed to provide router: %v", err)
	}
}

func register(container *dig.Container, name string, fn interface{}) {
	if err := container.Invoke(fn); err != nil {
		// Ignore ErrProviderNotConfigured as it's expected for optional providers
		if !errors.Is(err, ErrProviderNotConfigured) {
			log.Fatalf("Failed to register %s provider: %v", name, err)
		}
		observability.FromContext(context.Background()).Info("provider not configured, skipping",
			observability.String("provider", name))
	}
}

// provideInfrastructure wires persistence and event publishing.
func provideInfrastructure(container *dig.Container) {
	if err := container.Provide(gormstore.Open); err != nil {
		log.Fatalf("Failed to provide store: %v", err)
	}

	// Turn store, guarded by Redis when configured
	if err := container.Provide(func(store *gormstore.Store, cfg *redis.Config) (domain.TurnStore, error) {
		if cfg.Addr == "" {
			return store, nil
		}

		client, err := redis.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create commit guard: %w", err)
		}
		return redis.NewCommitGuard(client, store, cfg.GuardTTL, cfg.KeyPrefix), nil
	}); err != nil {
		log.Fatalf("Failed to provide turn store: %v", err)
	}

	// Event publisher, NATS when configured, log-only otherwise
	if err := container.Provide(func(logger *zap.Logger, cfg *nats.Config) (domain.EventPublisher, error) {
		if cfg.URL == "" {
			return observability.NewEventBus(logger), nil
		}

		conn, err := nats.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		return nats.NewPublisher(conn, cfg.SubjectPrefix), nil
	}); err != nil {
		log.Fatalf("Failed to provide event publisher: %v", err)
	}
}
