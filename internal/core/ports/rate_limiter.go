package ports

import (
	"context"
	"time"

	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
)

// RateLimitRepository persists fixed-window counters. It abstracts storage
// (e.g., Redis or the in-process cache). Implementation should be concurrency-safe.
type RateLimitRepository interface {
	// LoadWindow returns the stored window for key; ok=false when none exists.
	LoadWindow(ctx context.Context, key string) (w *ratelimit.Window, ok bool, err error)
	// SaveWindow stores w for key and lets it expire after ttl.
	SaveWindow(ctx context.Context, key string, w *ratelimit.Window, ttl time.Duration) error
	// DeleteWindow drops the window for key.
	DeleteWindow(ctx context.Context, key string) error
}

// Admission is a granted (or rejected) slot whose ledger entry may depend on
// the outcome of the guarded operation.
type Admission interface {
	Decision() ratelimit.Decision
	// Complete records the outcome. It is a no-op unless the limiter counts
	// only successful or only failed calls. Calling it more than once has no effect.
	Complete(ctx context.Context, success bool)
}

// RateLimiterService defines a client-scoped rate limiting capability for one operation class.
// Implementations encapsulate algorithm & storage and MUST be safe for concurrent use.
type RateLimiterService interface {
	Class() ratelimit.Class
	// Admit checks the client quota before an operation runs.
	Admit(ctx context.Context, clientKey string) (Admission, error)
	// Peek reports the current quota without consuming it.
	Peek(ctx context.Context, clientKey string) (ratelimit.Decision, error)
	// Reset clears the client window.
	Reset(ctx context.Context, clientKey string) error
}
