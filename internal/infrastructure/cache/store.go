// Package cache provides the key/value capability the cache synchronization
// service writes derived views into.
package cache

import (
	"context"
	"time"
)

// Store is a string key/value store with per-entry TTL. Implementations must
// be safe for concurrent use.
type Store interface {
	// Get returns the value and true, or false when the key is absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
