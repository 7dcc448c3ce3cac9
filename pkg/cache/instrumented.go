package cache

import (
	"context"
	"time"

	"github.com/matzehuels/cppsbom/pkg/observability"
)

// Instrumented reports hits, misses and writes of an inner cache to the
// registered observability hooks.
type Instrumented struct {
	Cache
	keyType string
}

// Instrument wraps c so its traffic is reported under keyType.
func Instrument(c Cache, keyType string) *Instrumented {
	return &Instrumented{Cache: c, keyType: keyType}
}

// Get forwards to the inner cache and records a hit or a miss.
func (c *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := c.Cache.Get(ctx, key)
	if err == nil {
		if ok {
			observability.Cache().OnCacheHit(ctx, c.keyType)
		} else {
			observability.Cache().OnCacheMiss(ctx, c.keyType)
		}
	}
	return data, ok, err
}

// Set forwards to the inner cache and records the write size.
func (c *Instrumented) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.Cache.Set(ctx, key, data, ttl); err != nil {
		return err
	}
	observability.Cache().OnCacheSet(ctx, c.keyType, len(data))
	return nil
}
