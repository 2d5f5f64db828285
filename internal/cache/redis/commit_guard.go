// Package redis short-circuits duplicate turn commits across replicas.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	pingTimeout = 5 * time.Second
	claimValue  = "1"
)

// KeyClaimer is the subset of the Redis client the guard needs.
type KeyClaimer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewClient connects to Redis and verifies the connection.
func NewClient(cfg *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// CommitGuard decorates a TurnStore with a Redis claim per (conversation,
// request). The database check of the wrapped store stays authoritative.
type CommitGuard struct {
	client KeyClaimer
	next   domain.TurnStore
	ttl    time.Duration
	prefix string
}

// NewCommitGuard creates a new commit guard in front of next.
func NewCommitGuard(client KeyClaimer, next domain.TurnStore, ttl time.Duration, prefix string) *CommitGuard {
	return &CommitGuard{
		client: client,
		next:   next,
		ttl:    ttl,
		prefix: prefix,
	}
}

// Commit claims the turn key and delegates to the wrapped store. A key
// already claimed yields domain.ErrDuplicateCommit without touching the
// store. When Redis is unreachable the commit falls through.
func (g *CommitGuard) Commit(ctx context.Context, user *domain.UserTurn, agent *domain.AgentTurn) error {
	logger := observability.FromContext(ctx)
	key := g.key(user)

	claimed, err := g.client.SetNX(ctx, key, claimValue, g.ttl).Result()
	if err != nil {
		logger.Warn("commit guard unavailable",
			observability.String("key", key),
			observability.Error(err),
		)
		return g.next.Commit(ctx, user, agent)
	}

	if !claimed {
		logger.Debug("commit already claimed", observability.String("key", key))
		return domain.ErrDuplicateCommit
	}

	if err := g.next.Commit(ctx, user, agent); err != nil {
		if !errors.Is(err, domain.ErrDuplicateCommit) {
			// Release the claim so a retry can commit.
			if delErr := g.client.Del(ctx, key).Err(); delErr != nil {
				logger.Warn("failed to release commit claim",
					observability.String("key", key),
					observability.Error(delErr),
				)
			}
		}
		return err
	}

	return nil
}

func (g *CommitGuard) key(user *domain.UserTurn) string {
	return g.prefix + user.ConversationID + ":" + user.RequestID
}
