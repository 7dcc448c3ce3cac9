// Package cache stores scan results between runs.
//
// A [Cache] is a plain byte store with per-entry TTL. [FileCache] serves the
// CLI, [RedisCache] serves shared deployments, and [NullCache] disables
// caching. Keys come from a [Keyer] so every backend sees the same layout.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key-value store with expiration.
//
// Get reports a miss with ok == false and a nil error. Implementations must
// be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// DefaultTTL is how long scan results stay valid when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// NullCache never stores anything. It backs --no-cache and the API tests.
type NullCache struct{}

// NewNullCache creates a null cache.
func NewNullCache() *NullCache { return &NullCache{} }

func (*NullCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (*NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (*NullCache) Delete(context.Context, string) error                     { return nil }
func (*NullCache) Close() error                                             { return nil }

var _ Cache = (*NullCache)(nil)
