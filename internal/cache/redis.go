package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transfa/ledger-kernel/internal/ledgererr"
)

// RedisCache implements Cache over a redis.UniversalClient, grounded on the
// teacher's RedisMoneyDropRateLimiter constructor shape (trimmed prefix with
// any trailing colon removed; nil-client safety).
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache builds a RedisCache; prefix defaults to "ledger:idempotency"
// when empty.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		trimmed = "ledger:idempotency"
	}
	trimmed = strings.TrimSuffix(trimmed, ":")
	return &RedisCache{client: client, prefix: trimmed}
}

func (c *RedisCache) key(k string) string { return c.prefix + ":" + k }

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, ledgererr.ErrCacheUnavailable
	}
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, ledgererr.Wrap(ledgererr.ErrCacheUnavailable, err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return ledgererr.ErrCacheUnavailable
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return ledgererr.Wrap(ledgererr.ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if c == nil || c.client == nil {
		return ledgererr.ErrCacheUnavailable
	}
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return ledgererr.Wrap(ledgererr.ErrCacheUnavailable, err)
	}
	return nil
}
