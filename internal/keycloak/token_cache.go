package keycloak

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// serviceTokenSkew is subtracted from expires_in so a cached token is never
// used in its last seconds.
const serviceTokenSkew = 30 * time.Second

// TokenCache stores service-account tokens between requests.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, token string, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

type noCache struct{}

func (noCache) Get(context.Context, string) (string, bool)         { return "", false }
func (noCache) Set(context.Context, string, string, time.Duration) {}
func (noCache) Delete(context.Context, string)                     {}

// RedisTokenCache keeps the token in Redis so every replica shares it.
// Redis errors are logged and treated as misses.
type RedisTokenCache struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewRedisTokenCache returns nil when rdb is nil so callers can pass the
// result straight to New.
func NewRedisTokenCache(rdb *redis.Client, log *zap.Logger) TokenCache {
	if rdb == nil {
		return nil
	}
	return &RedisTokenCache{rdb: rdb, log: log}
}

func (c *RedisTokenCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("service token cache read failed", zap.Error(err))
		}
		return "", false
	}
	return v, v != ""
}

func (c *RedisTokenCache) Set(ctx context.Context, key, token string, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, token, ttl).Err(); err != nil {
		c.log.Warn("service token cache write failed", zap.Error(err))
	}
}

func (c *RedisTokenCache) Delete(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.log.Warn("service token cache delete failed", zap.Error(err))
	}
}
