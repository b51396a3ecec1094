// Package memstore adapts the in-process cache store to the KVStore port.
package memstore

import (
	"context"
	"strings"
	"time"

	"github.com/avatarctic/scripture-cache/internal/core/ports"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cache"
)

type Store struct {
	s *cache.Store[[]byte]
}

var _ ports.KVStore = (*Store)(nil)

// New wraps s. A nil s gets a default-sized store.
func New(s *cache.Store[[]byte]) *Store {
	if s == nil {
		s = cache.New(cache.Options[[]byte]{})
	}
	return &Store{s: s}
}

func (m *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b, ok := m.s.Get(key)
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, true, nil
}

func (m *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.s.SetWithTTL(key, cp, ttl)
	return nil
}

func (m *Store) Delete(ctx context.Context, keyOrPattern string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if strings.Contains(keyOrPattern, "*") {
		return m.s.DeleteMatching(keyOrPattern), nil
	}
	if m.s.Delete(keyOrPattern) {
		return 1, nil
	}
	return 0, nil
}

func (m *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	for _, k := range m.s.Keys() {
		if cache.MatchPattern(k, pattern) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Stats exposes the wrapped store statistics.
func (m *Store) Stats() cache.Stats { return m.s.Stats() }
