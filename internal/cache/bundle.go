package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulseboard/pulseboard/internal/model"
)

// bundlePrefix is the Redis key prefix for cached dashboard bundles.
const bundlePrefix = "dashboard:bundle:"

// ErrCacheMiss is returned when no bundle is cached for a scope.
var ErrCacheMiss = errors.New("cache miss")

func bundleKey(scope model.Scope) string {
	return bundlePrefix + scope.Key()
}

// GetBundle returns the cached bundle of scope, or ErrCacheMiss.
func (c *Cache) GetBundle(ctx context.Context, scope model.Scope) (*model.Bundle, error) {
	data, err := c.client.Get(ctx, bundleKey(scope)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get bundle: %w", err)
	}

	var bundle model.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &bundle, nil
}

// SetBundle caches bundle for scope. A non-positive ttl disables caching.
func (c *Cache) SetBundle(ctx context.Context, scope model.Scope, bundle *model.Bundle, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	if err := c.client.Set(ctx, bundleKey(scope), data, ttl).Err(); err != nil {
		return fmt.Errorf("set bundle: %w", err)
	}
	return nil
}
