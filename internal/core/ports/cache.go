package ports

import (
	"context"
	"time"
)

// KVStore is the narrow contract of the backing key/value store.
// Implementations must be safe for concurrent use.
type KVStore interface {
	// Get returns the raw bytes for key. ok=false if not found or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for key with TTL (0 or negative means the store default).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes a key, or every key matching a pattern where '*' matches
	// any run of characters, and returns how many keys were removed.
	Delete(ctx context.Context, keyOrPattern string) (int, error)
	// Scan lists keys matching pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)
}
