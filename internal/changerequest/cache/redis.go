package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares cached lists across server instances.
type RedisCache struct {
	client *redis.Client
	prefix string
}

type RedisOption func(*RedisCache)

// WithKeyPrefix namespaces every key, e.g. per deployment.
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *RedisCache) { c.prefix = prefix }
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisCache {
	c := &RedisCache{client: client, prefix: "mppchs:"}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.prefix + k
	}
	return c.client.Del(ctx, prefixed...).Err()
}
