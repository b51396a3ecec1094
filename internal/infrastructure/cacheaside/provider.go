package cacheaside

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/avatarctic/scripture-cache/internal/infrastructure/breaker"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cache"
)

var (
	ErrUnknownCategory = errors.New("unknown cache category")
	ErrNoFetcher       = errors.New("no fetcher registered for category")
)

// Fetcher loads the value for a query's args from the underlying provider.
type Fetcher func(ctx context.Context, args []string) (any, error)

// FallbackMode selects what a lookup returns while the breaker is open.
type FallbackMode int

const (
	// FallbackNone propagates breaker.ErrOpen to the caller.
	FallbackNone FallbackMode = iota
	// FallbackNoData returns the zero value flagged as degraded.
	FallbackNoData
)

// Recorder receives lookup outcomes, typically for metrics export.
type Recorder interface {
	ObserveLookup(category string, cached bool, latency time.Duration, err error)
}

// Result wraps a looked-up value with cache metadata.
type Result[T any] struct {
	Value    T             `json:"value"`
	Cached   bool          `json:"cached"`
	Latency  time.Duration `json:"latency"`
	Key      string        `json:"key"`
	Degraded bool          `json:"degraded,omitempty"`
}

// Options configures a Provider. FlightTimeout bounds a de-duplicated fetch,
// which no single caller can cancel; it defaults to 30s.
type Options struct {
	Store           *cache.Store[any]
	Breaker         *breaker.Breaker
	Policy          *Policy
	Fallback        FallbackMode
	SingleFlight    bool
	FlightTimeout   time.Duration
	Seeds           []Query
	WarmConcurrency int
	Recorder        Recorder
	Logger          *logrus.Logger
	Clock           func() time.Time
}

// Provider implements cache-aside reads over a Store, optionally guarded by a
// circuit breaker.
type Provider struct {
	store       *cache.Store[any]
	breaker     *breaker.Breaker
	policy      *Policy
	fallback    FallbackMode
	singleFlt   bool
	flightTTL   time.Duration
	group       singleflight.Group
	seedMu      sync.RWMutex
	seeds       []Query
	concurrency int
	recorder    Recorder
	logger      *logrus.Logger
	now         func() time.Time
	tracer      trace.Tracer

	mu       sync.RWMutex
	fetchers map[Category]Fetcher

	counters *categoryCounters
}

func New(opts Options) *Provider {
	p := &Provider{
		store:       opts.Store,
		breaker:     opts.Breaker,
		policy:      opts.Policy,
		fallback:    opts.Fallback,
		singleFlt:   opts.SingleFlight,
		flightTTL:   opts.FlightTimeout,
		seeds:       opts.Seeds,
		concurrency: opts.WarmConcurrency,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		now:         opts.Clock,
		tracer:      otel.Tracer("github.com/avatarctic/scripture-cache/internal/infrastructure/cacheaside"),
		fetchers:    make(map[Category]Fetcher),
		counters:    newCategoryCounters(),
	}
	if p.store == nil {
		p.store = cache.New(cache.Options[any]{})
	}
	if p.policy == nil {
		p.policy = NewPolicy(nil)
	}
	if p.flightTTL <= 0 {
		p.flightTTL = 30 * time.Second
	}
	if p.concurrency <= 0 {
		p.concurrency = 4
	}
	if p.logger == nil {
		p.logger = logrus.New()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Register binds a fetcher to a category. The category still needs a TTL in
// the policy before lookups succeed.
func (p *Provider) Register(c Category, f Fetcher) {
	p.mu.Lock()
	p.fetchers[c] = f
	p.mu.Unlock()
}

func (p *Provider) fetcher(c Category) (Fetcher, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.fetchers[c]
	return f, ok
}

// Policy exposes the TTL policy so it can be updated at runtime.
func (p *Provider) Policy() *Policy { return p.policy }

// Store returns the backing cache store.
func (p *Provider) Store() *cache.Store[any] { return p.store }

// Lookup resolves q through the cache, dispatching misses to the fetcher
// registered for q.Category.
func Lookup[T any](ctx context.Context, p *Provider, q Query) (Result[T], error) {
	f, ok := p.fetcher(q.Category)
	if !ok {
		return Result[T]{Key: q.Key()}, fmt.Errorf("%w: %s", ErrNoFetcher, q.Category)
	}
	return typed[T](p.get(ctx, q, f))
}

// Fetch resolves q through the cache, using fn for misses.
func Fetch[T any](ctx context.Context, p *Provider, q Query, fn func(ctx context.Context) (T, error)) (Result[T], error) {
	return typed[T](p.get(ctx, q, func(ctx context.Context, _ []string) (any, error) {
		return fn(ctx)
	}))
}

func typed[T any](v any, m meta, err error) (Result[T], error) {
	res := Result[T]{Cached: m.cached, Latency: m.latency, Key: m.key, Degraded: m.degraded}
	if err != nil || v == nil {
		return res, err
	}
	tv, ok := v.(T)
	if !ok {
		return res, fmt.Errorf("cached value for %q has type %T", m.key, v)
	}
	res.Value = tv
	return res, nil
}

type meta struct {
	key      string
	cached   bool
	degraded bool
	latency  time.Duration
}

type loaded struct {
	value    any
	degraded bool
}

func (p *Provider) get(ctx context.Context, q Query, f Fetcher) (any, meta, error) {
	key := q.Key()
	m := meta{key: key}
	ttl, ok := p.policy.TTL(q.Category)
	if !ok {
		return nil, m, fmt.Errorf("%w: %s", ErrUnknownCategory, q.Category)
	}
	c := p.counters.get(q.Category)

	if v, hit := p.store.Get(key); hit {
		c.hits.Add(1)
		m.cached = true
		p.observe(q.Category, true, 0, nil)
		return v, m, nil
	}
	c.misses.Add(1)

	start := p.now()
	var (
		res loaded
		err error
	)
	if p.singleFlt {
		// The shared load outlives any one caller; each caller only stops waiting.
		ch := p.group.DoChan(key, func() (any, error) {
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.flightTTL)
			defer cancel()
			r, err := p.load(fctx, q, f, ttl)
			return r, err
		})
		select {
		case r := <-ch:
			err = r.Err
			if r.Val != nil {
				res = r.Val.(loaded)
			}
		case <-ctx.Done():
			err = ctx.Err()
		}
	} else {
		res, err = p.load(ctx, q, f, ttl)
	}
	m.latency = p.now().Sub(start)
	m.degraded = res.degraded

	if err != nil {
		c.errors.Add(1)
		p.observe(q.Category, false, m.latency, err)
		p.logger.WithFields(logrus.Fields{
			"category": q.Category,
			"key":      key,
			"error":    err.Error(),
		}).Warn("Underlying fetch failed")
		return nil, m, err
	}
	p.observe(q.Category, false, m.latency, nil)
	return res.value, m, nil
}

// load fetches and stores a successful, non-degraded value.
func (p *Provider) load(ctx context.Context, q Query, f Fetcher, ttl time.Duration) (loaded, error) {
	res, err := p.fetch(ctx, q, f)
	if err != nil || res.degraded {
		return res, err
	}
	p.store.SetWithTTL(q.Key(), res.value, ttl)
	return res, nil
}

// fetch runs f through the breaker, without touching the cache.
func (p *Provider) fetch(ctx context.Context, q Query, f Fetcher) (loaded, error) {
	ctx, span := p.tracer.Start(ctx, "cacheaside.fetch", trace.WithAttributes(
		attribute.String("cache.category", string(q.Category)),
		attribute.String("cache.key", q.Key()),
	))
	defer span.End()

	if p.breaker == nil {
		v, err := f(ctx, q.Args)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return loaded{value: v}, err
	}

	degraded := false
	var fallback breaker.Fallback
	if p.fallback == FallbackNoData {
		fallback = func(_ context.Context, err error) (any, error) {
			degraded = true
			p.counters.get(q.Category).fallbacks.Add(1)
			p.logger.WithFields(logrus.Fields{
				"category": q.Category,
				"breaker":  p.breaker.Name(),
				"reason":   err.Error(),
			}).Warn("Serving degraded response")
			return nil, nil
		}
	}
	v, err := p.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return f(ctx, q.Args)
	}, fallback)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Bool("cache.degraded", degraded))
	return loaded{value: v, degraded: degraded}, err
}

func (p *Provider) observe(c Category, cached bool, latency time.Duration, err error) {
	if p.recorder != nil {
		p.recorder.ObserveLookup(string(c), cached, latency, err)
	}
}

// ClearCache invalidates the whole cache (""), every key matching a pattern
// containing '*', or a single key. It returns the number of entries removed.
func (p *Provider) ClearCache(keyOrPattern string) int {
	switch {
	case keyOrPattern == "":
		n := p.store.Len()
		p.store.Clear()
		p.counters.reset()
		p.logger.WithField("entries", n).Info("Cache cleared")
		return n
	case strings.Contains(keyOrPattern, "*"):
		n := p.store.DeleteMatching(keyOrPattern)
		p.logger.WithFields(logrus.Fields{"pattern": keyOrPattern, "entries": n}).Info("Cache entries invalidated")
		return n
	default:
		if p.store.Delete(keyOrPattern) {
			return 1
		}
		return 0
	}
}

// ClearCategory drops every entry of one category.
func (p *Provider) ClearCategory(c Category) int {
	return p.store.DeletePrefix(string(c) + KeySeparator)
}

// CacheStats reports store-level statistics.
func (p *Provider) CacheStats() cache.Stats {
	return p.store.Stats()
}
