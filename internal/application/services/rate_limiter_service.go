package services

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
	"github.com/avatarctic/scripture-cache/internal/core/ports"
)

const lockStripes = 64

var _ ports.RateLimiterService = (*RateLimiterService)(nil)

// RateLimiterService implements a fixed-window limiter for one operation class.
type RateLimiterService struct {
	repo      ports.RateLimitRepository
	class     ratelimit.Class
	limit     int
	window    time.Duration
	mode      ratelimit.CountMode
	keyPrefix string
	logger    *logrus.Logger
	now       func() time.Time

	locks [lockStripes]sync.Mutex
}

// RateLimiterConfig groups configuration parameters for the rate limiter.
type RateLimiterConfig struct {
	Class       ratelimit.Class
	MaxRequests int
	Window      time.Duration
	CountMode   ratelimit.CountMode
	KeyPrefix   string
}

// DefaultRateLimiterConfig returns the quota used for class when nothing is configured.
func DefaultRateLimiterConfig(class ratelimit.Class) RateLimiterConfig {
	cfg := RateLimiterConfig{Class: class, CountMode: ratelimit.CountAll, KeyPrefix: "ratelimit"}
	switch class {
	case ratelimit.ClassInvalidation:
		cfg.MaxRequests, cfg.Window = 10, time.Minute
	case ratelimit.ClassWarming:
		cfg.MaxRequests, cfg.Window = 5, 5*time.Minute
	default:
		cfg.MaxRequests, cfg.Window = 100, 15*time.Minute
	}
	return cfg
}

type RateLimiterOption func(*RateLimiterService)

// WithRateLimiterClock overrides the time source.
func WithRateLimiterClock(now func() time.Time) RateLimiterOption {
	return func(s *RateLimiterService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewRateLimiterService(repo ports.RateLimitRepository, cfg *RateLimiterConfig, logger *logrus.Logger, opts ...RateLimiterOption) *RateLimiterService {
	class := ratelimit.ClassGeneral
	if cfg != nil && cfg.Class != "" {
		class = cfg.Class
	}
	// Apply defaults
	d := DefaultRateLimiterConfig(class)
	if cfg != nil {
		if cfg.MaxRequests > 0 {
			d.MaxRequests = cfg.MaxRequests
		}
		if cfg.Window > 0 {
			d.Window = cfg.Window
		}
		if cfg.CountMode.Valid() {
			d.CountMode = cfg.CountMode
		}
		if cfg.KeyPrefix != "" {
			d.KeyPrefix = cfg.KeyPrefix
		}
	}
	s := &RateLimiterService{
		repo:      repo,
		class:     class,
		limit:     d.MaxRequests,
		window:    d.Window,
		mode:      d.CountMode,
		keyPrefix: d.KeyPrefix,
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RateLimiterService) Class() ratelimit.Class { return s.class }

func (s *RateLimiterService) Limit() int { return s.limit }

func (s *RateLimiterService) Window() time.Duration { return s.window }

func (s *RateLimiterService) storageKey(clientKey string) string {
	if clientKey == "" {
		clientKey = AnonymousClient
	}
	return s.keyPrefix + ":" + string(s.class) + ":" + clientKey
}

func (s *RateLimiterService) lock(key string) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(key)%lockStripes]
}

func (s *RateLimiterService) freshWindow(now time.Time) *ratelimit.Window {
	return &ratelimit.Window{
		Limit:     s.limit,
		Start:     now,
		ResetAt:   now.Add(s.window),
		WindowDur: s.window.Milliseconds(),
	}
}

// currentWindow loads the live window for key or starts a new one.
func (s *RateLimiterService) currentWindow(ctx context.Context, key string, now time.Time) (*ratelimit.Window, error) {
	w, ok, err := s.repo.LoadWindow(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || w == nil || w.Expired(now) {
		return s.freshWindow(now), nil
	}
	return w, nil
}

// Admit checks the quota for clientKey. In "all" mode the request is counted
// immediately; otherwise counting waits for Admission.Complete.
func (s *RateLimiterService) Admit(ctx context.Context, clientKey string) (ports.Admission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := s.storageKey(clientKey)
	mu := s.lock(key)
	mu.Lock()
	defer mu.Unlock()

	now := s.now()
	w, err := s.currentWindow(ctx, key, now)
	if err != nil {
		return s.failOpen(key, now, err), nil
	}

	if w.Count >= s.limit {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"class": s.class, "client": clientKey, "count": w.Count, "limit": s.limit}).Debug("rate limit exceeded")
		}
		return &admission{decision: ratelimit.Decision{
			Allowed:    false,
			Limit:      s.limit,
			Remaining:  0,
			ResetAt:    w.ResetAt,
			RetryAfter: w.ResetAt.Sub(now),
		}, done: true}, nil
	}

	dec := ratelimit.Decision{
		Allowed:   true,
		Limit:     s.limit,
		Remaining: s.limit - w.Count - 1,
		ResetAt:   w.ResetAt,
	}
	if s.mode == ratelimit.CountAll {
		w.Count++
		w.Limit = s.limit
		if err := s.repo.SaveWindow(ctx, key, w, w.ResetAt.Sub(now)); err != nil {
			s.logStoreError(key, err)
			dec.FailOpen = true
		}
		return &admission{decision: dec, done: true}, nil
	}
	return &admission{svc: s, key: key, decision: dec}, nil
}

func (s *RateLimiterService) failOpen(key string, now time.Time, err error) ports.Admission {
	s.logStoreError(key, err)
	return &admission{decision: ratelimit.Decision{
		Allowed:   true,
		Limit:     s.limit,
		Remaining: s.limit - 1,
		ResetAt:   now.Add(s.window),
		FailOpen:  true,
	}, done: true}
}

func (s *RateLimiterService) logStoreError(key string, err error) {
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"class": s.class, "key": key}).WithError(err).Error("rate limiter: window store unavailable, failing open")
	}
}

// record counts one completed request against the current window.
func (s *RateLimiterService) record(ctx context.Context, key string) {
	mu := s.lock(key)
	mu.Lock()
	defer mu.Unlock()

	now := s.now()
	w, err := s.currentWindow(ctx, key, now)
	if err != nil {
		s.logStoreError(key, err)
		return
	}
	w.Count++
	w.Limit = s.limit
	if err := s.repo.SaveWindow(ctx, key, w, w.ResetAt.Sub(now)); err != nil {
		s.logStoreError(key, err)
	}
}

// Peek reports the quota for clientKey without consuming it.
func (s *RateLimiterService) Peek(ctx context.Context, clientKey string) (ratelimit.Decision, error) {
	key := s.storageKey(clientKey)
	now := s.now()
	w, err := s.currentWindow(ctx, key, now)
	if err != nil {
		return ratelimit.Decision{}, err
	}
	remaining := s.limit - w.Count
	if remaining < 0 {
		remaining = 0
	}
	dec := ratelimit.Decision{
		Allowed:   remaining > 0,
		Limit:     s.limit,
		Remaining: remaining,
		ResetAt:   w.ResetAt,
	}
	if !dec.Allowed {
		dec.RetryAfter = w.ResetAt.Sub(now)
	}
	return dec, nil
}

// Reset drops the window of clientKey.
func (s *RateLimiterService) Reset(ctx context.Context, clientKey string) error {
	key := s.storageKey(clientKey)
	mu := s.lock(key)
	mu.Lock()
	defer mu.Unlock()
	return s.repo.DeleteWindow(ctx, key)
}

type admission struct {
	svc      *RateLimiterService
	key      string
	decision ratelimit.Decision
	once     sync.Once
	done     bool
}

func (a *admission) Decision() ratelimit.Decision { return a.decision }

func (a *admission) Complete(ctx context.Context, success bool) {
	if a.done || a.svc == nil {
		return
	}
	a.once.Do(func() {
		switch a.svc.mode {
		case ratelimit.CountSuccessful:
			if success {
				a.svc.record(ctx, a.key)
			}
		case ratelimit.CountFailed:
			if !success {
				a.svc.record(ctx, a.key)
			}
		}
	})
}
