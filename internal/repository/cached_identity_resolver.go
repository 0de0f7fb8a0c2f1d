package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/token-auth/internal/domain"
)

const identityCachePrefix = "identity:roles:"

// IdentityResolver is the lookup the cache decorates.
type IdentityResolver interface {
	Resolve(ctx context.Context, subject string) ([]domain.Role, error)
}

// CachedIdentityResolver keeps resolved role lists in Redis for a short TTL.
// Unknown subjects are never cached and Redis failures fall through to the inner resolver.
type CachedIdentityResolver struct {
	inner  IdentityResolver
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedIdentityResolver wraps inner. A nil client or non-positive ttl disables caching.
func NewCachedIdentityResolver(inner IdentityResolver, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) IdentityResolver {
	if client == nil || ttl <= 0 {
		return inner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedIdentityResolver{inner: inner, client: client, ttl: ttl, logger: logger}
}

// Resolve serves from cache when possible, otherwise from the inner resolver.
func (c *CachedIdentityResolver) Resolve(ctx context.Context, subject string) ([]domain.Role, error) {
	key := identityCachePrefix + subject

	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var roles []domain.Role
		if jsonErr := json.Unmarshal(cached, &roles); jsonErr == nil {
			return roles, nil
		}
		c.logger.Warn("discarding corrupt identity cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("identity cache read failed", zap.Error(err))
	}

	roles, err := c.inner.Resolve(ctx, subject)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(roles); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("identity cache write failed", zap.Error(err))
		}
	}
	return roles, nil
}

