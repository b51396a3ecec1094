package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
	"github.com/avatarctic/scripture-cache/internal/core/ports"
)

// RateLimitKVRepository stores fixed-window state in any KVStore, e.g. Redis
// or the in-process cache.
type RateLimitKVRepository struct {
	kv ports.KVStore
}

var _ ports.RateLimitRepository = (*RateLimitKVRepository)(nil)

func NewRateLimitKVRepository(kv ports.KVStore) *RateLimitKVRepository {
	return &RateLimitKVRepository{kv: kv}
}

func (repo *RateLimitKVRepository) LoadWindow(ctx context.Context, key string) (*ratelimit.Window, bool, error) {
	b, ok, err := repo.kv.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("load window %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	var w ratelimit.Window
	if err := msgpack.Unmarshal(b, &w); err != nil {
		// A corrupt window is treated as absent; the next save replaces it.
		return nil, false, nil
	}
	return &w, true, nil
}

// SaveWindow writes w with the remaining window as TTL so stale windows
// disappear on their own.
func (repo *RateLimitKVRepository) SaveWindow(ctx context.Context, key string, w *ratelimit.Window, ttl time.Duration) error {
	b, err := msgpack.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode window: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	if err := repo.kv.Set(ctx, key, b, ttl); err != nil {
		return fmt.Errorf("save window %s: %w", key, err)
	}
	return nil
}

func (repo *RateLimitKVRepository) DeleteWindow(ctx context.Context, key string) error {
	if _, err := repo.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete window %s: %w", key, err)
	}
	return nil
}
