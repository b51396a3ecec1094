package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/avatarctic/scripture-cache/internal/core/ports"
)

const scanBatch = 100

// Store implements ports.KVStore on a Redis client. Calls go through a
// gobreaker guard so an unreachable server fails fast instead of stalling
// every request on dial timeouts.
type Store struct {
	r          redis.Cmdable
	prefix     string
	defaultTTL time.Duration
	cb         *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

var _ ports.KVStore = (*Store)(nil)

type StoreOptions struct {
	// Prefix namespaces every key.
	Prefix     string
	DefaultTTL time.Duration
	// BreakerFailures consecutive failures open the guard (default 5).
	BreakerFailures uint32
	// BreakerTimeout is how long the guard stays open (default 10s).
	BreakerTimeout time.Duration
	Logger         *logrus.Logger
}

// NewStore creates a new Redis-backed KV store.
func NewStore(r redis.Cmdable, opts StoreOptions) *Store {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 5 * time.Minute
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 10 * time.Second
	}
	s := &Store{r: r, prefix: strings.TrimSuffix(opts.Prefix, ":"), defaultTTL: opts.DefaultTTL, logger: opts.Logger}
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("redis guard state changed")
			}
		},
	})
	return s
}

func (s *Store) namespaced(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *Store) strip(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+":")
}

func (s *Store) guard(fn func() (any, error)) (any, error) {
	return s.cb.Execute(fn)
}

// GuardState reports the gobreaker guard state, e.g. for health checks.
func (s *Store) GuardState() string { return s.cb.State().String() }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ns := s.namespaced(key)
	v, err := s.guard(func() (any, error) {
		return s.r.Get(ctx, ns).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	ns := s.namespaced(key)
	_, err := s.guard(func() (any, error) {
		return nil, s.r.Set(ctx, ns, value, ttl).Err()
	})
	return err
}

// Delete removes a key, or all keys matching a '*' pattern via SCAN + DEL.
func (s *Store) Delete(ctx context.Context, keyOrPattern string) (int, error) {
	if !strings.Contains(keyOrPattern, "*") {
		v, err := s.guard(func() (any, error) {
			return s.r.Del(ctx, s.namespaced(keyOrPattern)).Result()
		})
		if err != nil {
			return 0, err
		}
		return int(v.(int64)), nil
	}

	keys, err := s.scan(ctx, keyOrPattern)
	if err != nil {
		return 0, err
	}
	total := 0
	for start := 0; start < len(keys); start += scanBatch {
		end := start + scanBatch
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		v, err := s.guard(func() (any, error) {
			return s.r.Del(ctx, batch...).Result()
		})
		if err != nil {
			return total, err
		}
		total += int(v.(int64))
	}
	return total, nil
}

func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.scan(ctx, pattern)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = s.strip(k)
	}
	return keys, nil
}

// scan returns namespaced keys matching pattern.
func (s *Store) scan(ctx context.Context, pattern string) ([]string, error) {
	match := s.namespaced(toGlob(pattern))
	var (
		cursor uint64
		out    []string
	)
	for {
		var (
			batch []string
			next  uint64
		)
		_, err := s.guard(func() (any, error) {
			var err error
			batch, next, err = s.r.Scan(ctx, cursor, match, scanBatch).Result()
			return nil, err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "?", `\?`, "[", `\[`, "]", `\]`)

// toGlob turns a '*' wildcard pattern into a Redis glob. '*' keeps its
// meaning at any position; every other glob metacharacter is escaped.
func toGlob(pattern string) string {
	return globEscaper.Replace(pattern)
}
