// Package cache defines the best-effort key/value cache contract used by the
// idempotency fast path (spec §4.1, §6).
package cache

import (
	"context"
	"time"
)

// Cache is a key/value store with per-entry TTL. It is not durable; callers
// must degrade gracefully to the durable store on error.
type Cache interface {
	// Get returns the stored bytes and true, or nil/false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key; a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
