// Package breaker implements a three-state circuit breaker that protects a
// backing resource from sustained failures and silent latency degradation.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the current state of the circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ErrOpen is returned when a call is short-circuited.
var ErrOpen = errors.New("circuit breaker is open")

// OpenError carries the breaker name and the earliest time a probe is allowed.
type OpenError struct {
	Breaker       string
	NextAttemptAt time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open until %s", e.Breaker, e.NextAttemptAt.Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrOpen) match.
func (e *OpenError) Is(target error) bool { return target == ErrOpen }

// Operation is the protected call.
type Operation func(ctx context.Context) (any, error)

// Fallback runs instead of the operation while the circuit is open. It
// receives the *OpenError the caller would otherwise get.
type Fallback func(ctx context.Context, err error) (any, error)

// Stats is a consistent snapshot of breaker state.
type Stats struct {
	Name           string        `json:"name"`
	State          string        `json:"state"`
	Failures       int           `json:"failures"`
	Successes      int           `json:"successes"`
	Requests       int           `json:"requests"`
	FailureRate    float64       `json:"failure_rate"`
	AverageLatency time.Duration `json:"average_latency"`
	LastFailureAt  *time.Time    `json:"last_failure_at,omitempty"`
	LastSuccessAt  *time.Time    `json:"last_success_at,omitempty"`
	NextAttemptAt  *time.Time    `json:"next_attempt_at,omitempty"`
	DroppedEvents  int64         `json:"dropped_events"`
}

// Breaker guards one backing resource. All bookkeeping happens under a single
// mutex; the protected operation itself runs without the lock held.
type Breaker struct {
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time

	mu          sync.Mutex
	state       State
	generation  uint64
	failures    int
	successes   int
	requests    int
	windowStart time.Time
	lastFailure time.Time
	lastSuccess time.Time
	nextAttempt time.Time
	probing     bool
	latencies   *latencyRing

	events *notifier
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *logrus.Logger) Option {
	return func(b *Breaker) { b.logger = logger }
}

// New creates a closed breaker. Zero config fields take defaults.
func New(cfg Config, opts ...Option) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{
		cfg:       cfg,
		now:       time.Now,
		state:     StateClosed,
		latencies: newLatencyRing(cfg.LatencySamples),
		events:    newNotifier(cfg.EventBuffer),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.windowStart = b.now()
	return b
}

// Name returns the configured breaker name.
func (b *Breaker) Name() string { return b.cfg.Name }

// Config returns the effective configuration.
func (b *Breaker) Config() Config { return b.cfg }

// Events exposes state transitions. Nobody has to listen: sends never block
// and are dropped once the buffer is full.
func (b *Breaker) Events() <-chan Event { return b.events.C() }

// State returns the current state without advancing it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op with circuit breaker protection.
func (b *Breaker) Execute(ctx context.Context, op Operation, fallback Fallback) (any, error) {
	gen, openErr := b.admit()
	if openErr != nil {
		if fallback != nil {
			return fallback(ctx, openErr)
		}
		return nil, openErr
	}

	start := b.now()
	res, err := op(ctx)
	b.record(gen, b.now().Sub(start), err)
	return res, err
}

// Do is the typed form of Execute.
func Do[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error), fallback func(ctx context.Context, err error) (T, error)) (T, error) {
	var fb Fallback
	if fallback != nil {
		fb = func(ctx context.Context, err error) (any, error) { return fallback(ctx, err) }
	}
	res, err := b.Execute(ctx, func(ctx context.Context) (any, error) { return op(ctx) }, fb)
	v, _ := res.(T)
	return v, err
}

// admit decides whether a call may run and, if so, counts it as a request.
func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateOpen:
		if now.Before(b.nextAttempt) {
			return 0, b.openErrorLocked()
		}
		b.transitionLocked(StateHalfOpen, now, "recovery timeout elapsed")
		fallthrough
	case StateHalfOpen:
		if b.probing {
			return 0, b.openErrorLocked()
		}
		b.probing = true
	case StateClosed:
		if b.cfg.MonitoringPeriod > 0 && now.Sub(b.windowStart) >= b.cfg.MonitoringPeriod {
			// Calls still in flight belong to the old window.
			b.generation++
			b.resetCountersLocked(now)
		}
	}
	b.requests++
	return b.generation, nil
}

// record applies an outcome. Results from calls admitted under a previous
// generation are discarded so a stale call cannot flip a fresh state.
func (b *Breaker) record(gen uint64, latency time.Duration, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.generation {
		return
	}
	now := b.now()
	b.latencies.add(latency)

	if err != nil {
		b.failures++
		b.lastFailure = now
	} else {
		b.successes++
		b.lastSuccess = now
	}

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		if err != nil {
			b.transitionLocked(StateOpen, now, "probe failed")
			return
		}
		b.transitionLocked(StateClosed, now, "probe succeeded")
	case StateClosed:
		if reason, trip := b.shouldTripLocked(); trip {
			b.transitionLocked(StateOpen, now, reason)
		}
	}
}

func (b *Breaker) shouldTripLocked() (string, bool) {
	if b.requests < b.cfg.VolumeThreshold {
		return "", false
	}
	if b.failures >= b.cfg.FailureThreshold {
		return "failure threshold reached", true
	}
	rate := float64(b.failures) / float64(b.requests)
	slowLimit := time.Duration(float64(b.cfg.ExpectedLatency) * b.cfg.LatencyMultiplier)
	if rate > b.cfg.SlowFailureRatio && b.latencies.average() > slowLimit {
		return "failure rate with degraded latency", true
	}
	return "", false
}

// transitionLocked moves to the given state, resets what the target state
// requires and publishes an event.
func (b *Breaker) transitionLocked(to State, now time.Time, reason string) {
	from := b.state
	b.state = to
	b.generation++
	b.probing = false

	switch to {
	case StateOpen:
		b.nextAttempt = now.Add(b.cfg.RecoveryTimeout)
	case StateClosed:
		b.resetCountersLocked(now)
		b.latencies.reset()
		b.nextAttempt = time.Time{}
	case StateHalfOpen:
		b.nextAttempt = time.Time{}
	}

	if b.logger != nil {
		b.logger.WithFields(logrus.Fields{
			"breaker": b.cfg.Name,
			"from":    from.String(),
			"to":      to.String(),
			"reason":  reason,
		}).Info("circuit breaker state changed")
	}
	b.events.publish(newEvent(b.cfg.Name, from, to, now, reason))
}

func (b *Breaker) resetCountersLocked(now time.Time) {
	b.failures, b.successes, b.requests = 0, 0, 0
	b.windowStart = now
}

func (b *Breaker) openErrorLocked() error {
	return &OpenError{Breaker: b.cfg.Name, NextAttemptAt: b.nextAttempt}
}

// Stats returns a consistent snapshot.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := Stats{
		Name:           b.cfg.Name,
		State:          b.state.String(),
		Failures:       b.failures,
		Successes:      b.successes,
		Requests:       b.requests,
		AverageLatency: b.latencies.average(),
		DroppedEvents:  b.events.dropped(),
	}
	if b.requests > 0 {
		st.FailureRate = float64(b.failures) / float64(b.requests)
	}
	st.LastFailureAt = timePtr(b.lastFailure)
	st.LastSuccessAt = timePtr(b.lastSuccess)
	if b.state == StateOpen {
		st.NextAttemptAt = timePtr(b.nextAttempt)
	}
	return st
}

// ForceOpen opens the circuit for a full recovery timeout.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if b.state == StateOpen {
		b.nextAttempt = now.Add(b.cfg.RecoveryTimeout)
		return
	}
	b.transitionLocked(StateOpen, now, "forced open")
}

// ForceClose closes the circuit and clears all counters.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if b.state == StateClosed {
		b.resetCountersLocked(now)
		b.latencies.reset()
		return
	}
	b.transitionLocked(StateClosed, now, "forced closed")
}

// ForceHalfOpen lets the next call act as a probe.
func (b *Breaker) ForceHalfOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		return
	}
	b.transitionLocked(StateHalfOpen, b.now(), "forced half-open")
}

// Reset is the administrative equivalent of a successful probe.
func (b *Breaker) Reset() { b.ForceClose() }

// Close releases the event channel. The breaker must not be used afterwards.
func (b *Breaker) Close() { b.events.close() }

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
