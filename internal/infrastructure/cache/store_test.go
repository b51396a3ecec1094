package cache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/scripture-cache/internal/infrastructure/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStore(t *testing.T, maxSize int, clock *fakeClock) *cache.Store[string] {
	t.Helper()
	s := cache.New(cache.Options[string]{MaxSize: maxSize, DefaultTTL: time.Minute, Clock: clock.Now})
	t.Cleanup(s.Stop)
	return s
}

func TestStore_GetBeforeAndAfterTTL(t *testing.T) {
	clock := newFakeClock()
	s := newStore(t, 10, clock)

	s.SetWithTTL("bible:GEN:1:1", "In the beginning...", time.Second)

	v, ok := s.Get("bible:GEN:1:1")
	require.True(t, ok)
	require.Equal(t, "In the beginning...", v)

	clock.Advance(1100 * time.Millisecond)
	_, ok = s.Get("bible:GEN:1:1")
	require.False(t, ok)

	st := s.Stats()
	require.Equal(t, int64(1), st.Hits)
	require.Equal(t, int64(1), st.Misses)
	require.Equal(t, int64(1), st.Expirations)
	require.Equal(t, 0, st.Size)
}

func TestStore_ExpiresExactlyAtDeadline(t *testing.T) {
	clock := newFakeClock()
	s := newStore(t, 10, clock)

	s.SetWithTTL("k", "v", time.Second)
	clock.Advance(time.Second)
	_, ok := s.Get("k")
	require.False(t, ok)
}

func TestStore_DefaultTTLWhenNonPositive(t *testing.T) {
	clock := newFakeClock()
	s := newStore(t, 10, clock)

	s.SetWithTTL("k", "v", -5)
	clock.Advance(59 * time.Second)
	require.True(t, s.Has("k"))
	clock.Advance(time.Second)
	require.False(t, s.Has("k"))
}

func TestStore_EvictsLeastRecentlyInserted(t *testing.T) {
	clock := newFakeClock()
	s := newStore(t, 3, clock)

	for i := 0; i < 4; i++ {
		s.Set(fmt.Sprintf("k%d", i), "v")
		clock.Advance(time.Millisecond)
	}

	require.False(t, s.Has("k0"))
	for _, k := range []string{"k1", "k2", "k3"} {
		require.True(t, s.Has(k), k)
	}
	require.Equal(t, int64(1), s.Stats().Evictions)
}

func TestStore_ReadProtectsFromEviction(t *testing.T) {
	clock := newFakeClock()
	s := newStore(t, 3, clock)

	s.Set("k0", "v")
	s.Set("k1", "v")
	s.Set("k2", "v")
	_, ok := s.Get("k0")
	require.True(t, ok)

	s.Set("k3", "v")

	require.True(t, s.Has("k0"))
	require.False(t, s.Has("k1"))
	require.Equal(t, []string{"k3", "k0", "k2"}, s.Keys())
}

func TestStore_ReplaceDoesNotEvict(t *testing.T) {
	clock := newFakeClock()
	s := newStore(t, 2, clock)

	s.Set("a", "1")
	s.Set("b", "2")
	s.SetWithTTL("a", "3", time.Hour)

	require.Equal(t, 2, s.Len())
	require.Equal(t, int64(0), s.Stats().Evictions)
	v, _ := s.Get("a")
	require.Equal(t, "3", v)

	// Replacing resets createdAt, so the new TTL counts from the rewrite.
	clock.Advance(59 * time.Minute)
	require.True(t, s.Has("a"))
}

func TestStore_FullStoreDropsExpiredBeforeLive(t *testing.T) {
	clock := newFakeClock()
	s := newStore(t, 2, clock)

	s.SetWithTTL("short", "v", time.Second)
	s.SetWithTTL("long", "v", time.Hour)
	clock.Advance(2 * time.Second)

	s.Set("new", "v")
	require.True(t, s.Has("long"))
	require.True(t, s.Has("new"))
	st := s.Stats()
	require.Equal(t, int64(0), st.Evictions)
	require.Equal(t, int64(1), st.Expirations)
}

func TestStore_DeleteClearAndPatterns(t *testing.T) {
	clock := newFakeClock()
	s := newStore(t, 10, clock)

	s.Set("verse:KJV:JHN:3:16", "a")
	s.Set("verse:KJV:GEN:1:1", "b")
	s.Set("search:love", "c")
	s.Set("chapter:KJV:PSA:23", "d")

	require.True(t, s.Delete("search:love"))
	require.False(t, s.Delete("search:love"))
	require.Equal(t, 2, s.DeletePrefix("verse:"))
	require.Equal(t, 1, s.DeleteMatching("*:23"))
	require.Equal(t, 0, s.Len())

	s.Set("x", "y")
	_, _ = s.Get("x")
	s.Clear()
	st := s.Stats()
	require.Equal(t, 0, st.Size)
	require.Zero(t, st.Hits)
	require.Zero(t, st.Misses)
	require.Zero(t, st.MemoryEstimate)
}

func TestStore_WarmBulkInsert(t *testing.T) {
	clock := newFakeClock()
	s := newStore(t, 10, clock)

	s.Warm([]cache.Entry[string]{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2", TTL: time.Second},
	})
	require.Equal(t, 2, s.Len())

	clock.Advance(2 * time.Second)
	require.False(t, s.Has("b"))
	require.True(t, s.Has("a"))
}

func TestStore_StatsEstimates(t *testing.T) {
	clock := newFakeClock()
	s := newStore(t, 10, clock)

	s.Set("a", "12345")
	clock.Advance(10 * time.Second)
	s.Set("b", "1")
	_, _ = s.Get("a")
	_, _ = s.Get("missing")

	st := s.Stats()
	assert.Equal(t, 2, st.Size)
	assert.Equal(t, 10, st.MaxSize)
	assert.InDelta(t, 0.5, st.HitRate, 0.0001)
	assert.Equal(t, 5*time.Second, st.AverageEntryAge)
	assert.Greater(t, st.MemoryEstimate, int64(len("a12345b1")))
}

func TestStore_SweepRemovesExpired(t *testing.T) {
	clock := newFakeClock()
	s := newStore(t, 10, clock)

	s.SetWithTTL("a", "1", time.Second)
	s.SetWithTTL("b", "2", time.Hour)
	clock.Advance(2 * time.Second)

	require.Equal(t, 2, s.Len())
	require.Equal(t, 1, s.Sweep())
	require.Equal(t, 1, s.Len())
}

func TestStore_BackgroundSweepStops(t *testing.T) {
	s := cache.New(cache.Options[string]{DefaultTTL: time.Millisecond, SweepInterval: 5 * time.Millisecond})
	s.Set("a", "1")

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestStore_OnEvictReportsReason(t *testing.T) {
	clock := newFakeClock()
	var reasons []cache.RemovalReason
	s := cache.New(cache.Options[string]{
		MaxSize: 1,
		Clock:   clock.Now,
		OnEvict: func(_ string, _ string, r cache.RemovalReason) { reasons = append(reasons, r) },
	})

	s.SetWithTTL("a", "1", time.Second)
	s.Set("b", "2")
	clock.Advance(10 * time.Minute)
	_, _ = s.Get("b")

	require.Equal(t, []cache.RemovalReason{cache.RemovedEvicted, cache.RemovedExpired}, reasons)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := cache.New(cache.Options[int]{MaxSize: 50})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := fmt.Sprintf("k%d", (g*31+i)%120)
				s.Set(k, i)
				s.Get(k)
				if i%7 == 0 {
					s.Delete(k)
				}
			}
		}(g)
	}
	wg.Wait()
	require.LessOrEqual(t, s.Len(), 50)
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		str, pattern string
		want         bool
	}{
		{"verse:KJV", "*", true},
		{"verse:KJV", "verse:*", true},
		{"verse:KJV", "*:KJV", true},
		{"verse:KJV", "verse:KJV", true},
		{"verse:KJV", "chapter:*", false},
		{"verse:KJV:GEN:1:1", "*KJV:GEN*", true},
		{"verse:KJV:GEN:1:1", "*EXO*", false},
		{"scripture:verse:KJV:GEN:1:1", "scripture:*:GEN:1:1", true},
		{"scripture:verse:KJV:GEN:1:1", "scripture:*:EXO:1:1", false},
		{"verse:KJV:GEN:1:1", "verse:*:GEN:*:1", true},
		{"ab", "ab*b", false},
		{"", "*", true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, cache.MatchPattern(tc.str, tc.pattern), "%s ~ %s", tc.str, tc.pattern)
	}
}
