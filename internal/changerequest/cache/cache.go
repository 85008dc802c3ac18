// Package cache holds the short-TTL read cache for per-beneficiary request
// lists.
package cache

import (
	"context"
	"encoding/json"
	"time"

	id "mppchs/pkg/domain"
)

//go:generate mockgen -source=cache.go -destination=mocks/cache-mocks.go -package=mocks Cache

// Cache stores opaque values with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ListKey is the cache key of a beneficiary's request list.
func ListKey(beneficiaryID id.BeneficiaryID) string {
	return "cr:list:" + beneficiaryID.String()
}

// Remember returns the cached value for key, or calls produce and caches
// its result. A failing or undecodable cache degrades to a miss; only
// produce's error is returned. hit reports whether the cache served the
// value.
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, produce func(context.Context) (T, error)) (value T, hit bool, err error) {
	if raw, ok, getErr := c.Get(ctx, key); getErr == nil && ok {
		if json.Unmarshal(raw, &value) == nil {
			return value, true, nil
		}
	}
	value, err = produce(ctx)
	if err != nil {
		return value, false, err
	}
	if raw, marshalErr := json.Marshal(value); marshalErr == nil {
		_ = c.Set(ctx, key, raw, ttl)
	}
	return value, false, nil
}
