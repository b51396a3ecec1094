package cacheaside_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/scripture-cache/internal/infrastructure/breaker"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cache"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cacheaside"
)

var errUpstream = errors.New("upstream unavailable")

type recorder struct {
	mu    sync.Mutex
	calls []bool
}

func (r *recorder) ObserveLookup(_ string, cached bool, _ time.Duration, _ error) {
	r.mu.Lock()
	r.calls = append(r.calls, cached)
	r.mu.Unlock()
}

func newProvider(t *testing.T, opts cacheaside.Options) *cacheaside.Provider {
	t.Helper()
	if opts.Store == nil {
		opts.Store = cache.New(cache.Options[any]{MaxSize: 100})
	}
	return cacheaside.New(opts)
}

func verseQuery(book string, ch, v int) cacheaside.Query {
	return cacheaside.Query{
		Category: cacheaside.CategoryVerse,
		Args:     []string{"KJV", book, cacheaside.IntArg(ch), cacheaside.IntArg(v)},
	}
}

func TestBuildKey(t *testing.T) {
	require.Equal(t, "verse:KJV:GEN:1:1", verseQuery("GEN", 1, 1).Key())
	require.Equal(t, "reference", cacheaside.BuildKey(cacheaside.CategoryReference))

	// Separators inside an argument must not alias another split.
	a := cacheaside.BuildKey(cacheaside.CategoryVerse, "a:b", "c")
	b := cacheaside.BuildKey(cacheaside.CategoryVerse, "a", "b:c")
	require.NotEqual(t, a, b)

	require.Equal(t,
		cacheaside.SetArg([]string{"KJV", "ESV", "NIV"}),
		cacheaside.SetArg([]string{"NIV", "KJV", "ESV", "KJV"}))
	require.Equal(t, []string{"ESV", "KJV"}, cacheaside.ParseSetArg(cacheaside.SetArg([]string{"KJV", "ESV"})))

	require.Equal(t, "in the beginning", cacheaside.TextArg("  In   THE beginning "))

	long := strings.Repeat("love ", 30)
	k1 := cacheaside.BuildKey(cacheaside.CategorySearch, "KJV", long)
	k2 := cacheaside.BuildKey(cacheaside.CategorySearch, "KJV", long)
	require.Equal(t, k1, k2)
	require.Less(t, len(k1), 64)
}

func TestLookup_MissThenHit(t *testing.T) {
	rec := &recorder{}
	p := newProvider(t, cacheaside.Options{Recorder: rec})
	var calls atomic.Int32
	p.Register(cacheaside.CategoryVerse, func(_ context.Context, args []string) (any, error) {
		calls.Add(1)
		return "In the beginning " + strings.Join(args, "/"), nil
	})

	ctx := context.Background()
	first, err := cacheaside.Lookup[string](ctx, p, verseQuery("GEN", 1, 1))
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, "In the beginning KJV/GEN/1/1", first.Value)
	require.Equal(t, "verse:KJV:GEN:1:1", first.Key)

	second, err := cacheaside.Lookup[string](ctx, p, verseQuery("GEN", 1, 1))
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Zero(t, second.Latency)
	require.Equal(t, first.Value, second.Value)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, []bool{false, true}, rec.calls)
}

func TestLookup_ErrorsAreNotCached(t *testing.T) {
	p := newProvider(t, cacheaside.Options{})
	fail := true
	p.Register(cacheaside.CategoryVerse, func(context.Context, []string) (any, error) {
		if fail {
			return nil, errUpstream
		}
		return "ok", nil
	})

	ctx := context.Background()
	_, err := cacheaside.Lookup[string](ctx, p, verseQuery("JHN", 3, 16))
	require.ErrorIs(t, err, errUpstream)
	require.Zero(t, p.CacheStats().Size)

	fail = false
	res, err := cacheaside.Lookup[string](ctx, p, verseQuery("JHN", 3, 16))
	require.NoError(t, err)
	require.False(t, res.Cached)
	require.Equal(t, "ok", res.Value)
}

func TestLookup_UsesCategoryTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := cache.New(cache.Options[any]{Clock: clock})
	p := newProvider(t, cacheaside.Options{
		Store:  store,
		Policy: cacheaside.NewPolicy(map[cacheaside.Category]time.Duration{cacheaside.CategorySearch: time.Minute}),
		Clock:  clock,
	})

	q := cacheaside.Query{Category: cacheaside.CategorySearch, Args: []string{"KJV", "love"}}
	_, err := cacheaside.Fetch(context.Background(), p, q, func(context.Context) ([]string, error) {
		return []string{"JHN 3:16"}, nil
	})
	require.NoError(t, err)
	require.True(t, store.Has(q.Key()))

	now = now.Add(time.Minute)
	require.False(t, store.Has(q.Key()))
}

func TestLookup_UnknownCategoryAndMissingFetcher(t *testing.T) {
	p := newProvider(t, cacheaside.Options{})
	_, err := cacheaside.Fetch(context.Background(), p, cacheaside.Query{Category: "hymns"},
		func(context.Context) (string, error) { return "", nil })
	require.ErrorIs(t, err, cacheaside.ErrUnknownCategory)

	_, err = cacheaside.Lookup[string](context.Background(), p, verseQuery("GEN", 1, 1))
	require.ErrorIs(t, err, cacheaside.ErrNoFetcher)
}

func TestLookup_TypeMismatch(t *testing.T) {
	p := newProvider(t, cacheaside.Options{})
	p.Register(cacheaside.CategoryVerse, func(context.Context, []string) (any, error) { return 7, nil })
	_, err := cacheaside.Lookup[string](context.Background(), p, verseQuery("GEN", 1, 1))
	require.Error(t, err)
}

func openBreaker() *breaker.Breaker {
	b := breaker.New(breaker.Config{Name: "scripture-api"})
	b.ForceOpen()
	return b
}

func TestLookup_BreakerOpenPropagates(t *testing.T) {
	p := newProvider(t, cacheaside.Options{Breaker: openBreaker()})
	called := false
	p.Register(cacheaside.CategoryVerse, func(context.Context, []string) (any, error) {
		called = true
		return "x", nil
	})

	_, err := cacheaside.Lookup[string](context.Background(), p, verseQuery("GEN", 1, 1))
	require.ErrorIs(t, err, breaker.ErrOpen)
	require.False(t, called)
}

func TestLookup_BreakerOpenFallbackIsDegradedAndNotCached(t *testing.T) {
	p := newProvider(t, cacheaside.Options{Breaker: openBreaker(), Fallback: cacheaside.FallbackNoData})
	p.Register(cacheaside.CategoryVerse, func(context.Context, []string) (any, error) { return "x", nil })

	res, err := cacheaside.Lookup[string](context.Background(), p, verseQuery("GEN", 1, 1))
	require.NoError(t, err)
	require.True(t, res.Degraded)
	require.Empty(t, res.Value)
	require.Zero(t, p.CacheStats().Size)

	detailed := p.DetailedCacheStats()
	for _, c := range detailed.Categories {
		if c.Category == cacheaside.CategoryVerse {
			require.Equal(t, int64(1), c.Fallbacks)
		}
	}
}

func TestLookup_CachedValueServedWhileBreakerOpen(t *testing.T) {
	b := breaker.New(breaker.Config{Name: "scripture-api"})
	p := newProvider(t, cacheaside.Options{Breaker: b})
	p.Register(cacheaside.CategoryVerse, func(context.Context, []string) (any, error) { return "cached", nil })

	ctx := context.Background()
	_, err := cacheaside.Lookup[string](ctx, p, verseQuery("GEN", 1, 1))
	require.NoError(t, err)

	b.ForceOpen()
	res, err := cacheaside.Lookup[string](ctx, p, verseQuery("GEN", 1, 1))
	require.NoError(t, err)
	require.True(t, res.Cached)
	require.Equal(t, "cached", res.Value)
}

func TestLookup_SingleFlight(t *testing.T) {
	p := newProvider(t, cacheaside.Options{SingleFlight: true})
	var calls atomic.Int32
	release := make(chan struct{})
	p.Register(cacheaside.CategoryVerse, func(context.Context, []string) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := cacheaside.Lookup[string](context.Background(), p, verseQuery("PSA", 23, 1))
			assert.NoError(t, err)
			assert.Equal(t, "shared", res.Value)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	require.LessOrEqual(t, calls.Load(), int32(5))
	require.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestLookup_SingleFlightSurvivesLeaderCancel(t *testing.T) {
	p := newProvider(t, cacheaside.Options{SingleFlight: true})
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	p.Register(cacheaside.CategoryVerse, func(ctx context.Context, _ []string) (any, error) {
		calls.Add(1)
		close(started)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return "shared", nil
		}
	})
	q := verseQuery("JHN", 3, 16)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cacheaside.Lookup[string](leaderCtx, p, q)
		leaderErr <- err
	}()
	<-started

	waiter := make(chan cacheaside.Result[string], 1)
	go func() {
		res, err := cacheaside.Lookup[string](context.Background(), p, q)
		assert.NoError(t, err)
		waiter <- res
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	res := <-waiter
	require.Equal(t, "shared", res.Value)
	require.Equal(t, int32(1), calls.Load())
	require.True(t, p.Store().Has(q.Key()))
}

func TestClearCache(t *testing.T) {
	p := newProvider(t, cacheaside.Options{})
	p.Register(cacheaside.CategoryVerse, func(_ context.Context, args []string) (any, error) { return args[1], nil })
	p.Register(cacheaside.CategoryChapter, func(_ context.Context, args []string) (any, error) { return args[1], nil })

	ctx := context.Background()
	for _, q := range []cacheaside.Query{
		verseQuery("GEN", 1, 1),
		verseQuery("GEN", 1, 2),
		verseQuery("EXO", 1, 1),
		{Category: cacheaside.CategoryChapter, Args: []string{"KJV", "GEN", "1"}},
	} {
		_, err := cacheaside.Lookup[string](ctx, p, q)
		require.NoError(t, err)
	}

	require.Equal(t, 2, p.ClearCache("verse:KJV:GEN:*"))
	require.Equal(t, 1, p.ClearCache("verse:KJV:EXO:1:1"))
	require.Equal(t, 0, p.ClearCache("verse:KJV:EXO:1:1"))
	require.Equal(t, 1, p.ClearCache(""))
	require.Zero(t, p.CacheStats().Size)
}

func TestDetailedCacheStats(t *testing.T) {
	p := newProvider(t, cacheaside.Options{})
	p.Register(cacheaside.CategoryVerse, func(_ context.Context, args []string) (any, error) {
		if args[1] == "ERR" {
			return nil, errUpstream
		}
		return "v", nil
	})
	ctx := context.Background()
	_, _ = cacheaside.Lookup[string](ctx, p, verseQuery("GEN", 1, 1))
	_, _ = cacheaside.Lookup[string](ctx, p, verseQuery("GEN", 1, 1))
	_, _ = cacheaside.Lookup[string](ctx, p, verseQuery("ERR", 1, 1))

	st := p.DetailedCacheStats()
	require.Equal(t, 1, st.Size)
	require.Len(t, st.Categories, 6)

	var verse cacheaside.CategoryStats
	for _, c := range st.Categories {
		if c.Category == cacheaside.CategoryVerse {
			verse = c
		}
	}
	require.Equal(t, 6*time.Hour, verse.TTL)
	require.Equal(t, 1, verse.Entries)
	require.Equal(t, int64(1), verse.Hits)
	require.Equal(t, int64(2), verse.Misses)
	require.Equal(t, int64(1), verse.Errors)
}

func TestWarmCache_IsolatesFailures(t *testing.T) {
	seeds := []cacheaside.Query{
		verseQuery("GEN", 1, 1),
		verseQuery("BAD", 1, 1),
		verseQuery("JHN", 3, 16),
		verseQuery("GEN", 1, 1),
		{Category: "hymns", Args: []string{"1"}},
	}
	p := newProvider(t, cacheaside.Options{Seeds: seeds, WarmConcurrency: 2})
	p.Register(cacheaside.CategoryVerse, func(_ context.Context, args []string) (any, error) {
		if args[1] == "BAD" {
			return nil, errUpstream
		}
		return args[1], nil
	})

	rep := p.WarmCache(context.Background(), nil)
	require.Equal(t, 5, rep.Requested)
	require.Equal(t, 2, rep.Loaded)
	require.Equal(t, 1, rep.Skipped)
	require.Equal(t, 2, rep.Failed)
	require.Len(t, rep.Errors, 2)
	require.Equal(t, 2, p.CacheStats().Size)

	// Warming does not count as reads.
	require.Zero(t, p.CacheStats().Hits)
}

func TestPrefetch_SkipsCachedKeys(t *testing.T) {
	p := newProvider(t, cacheaside.Options{})
	var calls atomic.Int32
	p.Register(cacheaside.CategoryVerse, func(_ context.Context, args []string) (any, error) {
		calls.Add(1)
		return args[1], nil
	})
	ctx := context.Background()
	_, err := cacheaside.Lookup[string](ctx, p, verseQuery("GEN", 1, 1))
	require.NoError(t, err)

	rep := p.Prefetch(ctx, []cacheaside.Query{verseQuery("GEN", 1, 1), verseQuery("GEN", 1, 2)})
	require.Equal(t, 1, rep.Skipped)
	require.Equal(t, 1, rep.Loaded)
	require.Equal(t, int32(2), calls.Load())
}

func TestWarmCache_DegradedEntriesSkipped(t *testing.T) {
	p := newProvider(t, cacheaside.Options{Breaker: openBreaker(), Fallback: cacheaside.FallbackNoData})
	p.Register(cacheaside.CategoryVerse, func(context.Context, []string) (any, error) { return "x", nil })

	rep := p.WarmCache(context.Background(), []cacheaside.Query{verseQuery("GEN", 1, 1)})
	require.Equal(t, 1, rep.Skipped)
	require.Zero(t, rep.Loaded)
	require.Zero(t, p.CacheStats().Size)
}

func TestPolicy(t *testing.T) {
	pol := cacheaside.NewPolicy(map[cacheaside.Category]time.Duration{cacheaside.CategoryVerse: time.Minute})
	ttl, ok := pol.TTL(cacheaside.CategoryVerse)
	require.True(t, ok)
	require.Equal(t, time.Minute, ttl)

	pol.Set(cacheaside.CategoryChapter, 0)
	ttl, _ = pol.TTL(cacheaside.CategoryChapter)
	require.Equal(t, time.Hour, ttl)

	pol.Set("hymns", time.Second)
	require.Contains(t, pol.Categories(), cacheaside.Category("hymns"))
}
