package routing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/davidbz/hearth/internal/domain"
)

// Config contains agent routing settings.
type Config struct {
	DefaultProvider string            `env:"ROUTING_DEFAULT_PROVIDER" envDefault:"dify"`
	AgentProviders  map[string]string `env:"ROUTING_AGENT_PROVIDERS"`
}

// TableRouter routes agents to providers through a static table.
type TableRouter struct {
	registry        domain.ProviderRegistry
	defaultProvider string
	agents          map[int64]string
}

// NewRouter creates a new router.
func NewRouter(registry domain.ProviderRegistry, cfg *Config) (*TableRouter, error) {
	router := &TableRouter{
		registry: registry,
		agents:   make(map[int64]string),
	}

	if cfg == nil {
		return router, nil
	}

	router.defaultProvider = strings.TrimSpace(cfg.DefaultProvider)

	for rawID, provider := range cfg.AgentProviders {
		agentID, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
		if err != nil || agentID <= 0 {
			return nil, fmt.Errorf("invalid agent id %q in routing table", rawID)
		}
		router.agents[agentID] = strings.TrimSpace(provider)
	}

	return router, nil
}

// Route selects the provider serving the given agent.
func (r *TableRouter) Route(ctx context.Context, req *domain.RouteRequest) (string, error) {
	if req == nil {
		return "", errors.New("route request cannot be nil")
	}

	if req.AgentID <= 0 {
		return "", errors.New("agent id is required")
	}

	name, exists := r.agents[req.AgentID]
	if !exists {
		name = r.defaultProvider
	}

	if name == "" {
		return "", fmt.Errorf("no provider configured for agent %d: %w", req.AgentID, domain.ErrProviderNotFound)
	}

	providerNames, err := r.registry.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list providers: %w", err)
	}

	if !slices.Contains(providerNames, name) {
		return "", fmt.Errorf("provider %s for agent %d: %w", name, req.AgentID, domain.ErrProviderNotFound)
	}

	return name, nil
}
