package monitoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/breaker"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cache"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/monitoring"
)

func requireCount(t *testing.T, reg *prometheus.Registry, want int, names ...string) {
	t.Helper()
	n, err := testutil.GatherAndCount(reg, names...)
	require.NoError(t, err)
	require.Equal(t, want, n)
}

func TestMetrics_Lookups(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.New(reg, nil)

	m.ObserveLookup("verse", true, 0, nil)
	m.ObserveLookup("verse", false, 20*time.Millisecond, nil)
	m.ObserveLookup("verse", false, time.Millisecond, errors.New("boom"))

	requireCount(t, reg, 1, "scripture_cache_fetch_duration_seconds")
	requireCount(t, reg, 3, "scripture_cache_lookups_total")
}

func TestMetrics_RateDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.New(reg, nil)
	m.ObserveDecision(ratelimit.ClassGeneral, ratelimit.Decision{Allowed: true})
	m.ObserveDecision(ratelimit.ClassGeneral, ratelimit.Decision{Allowed: false})
	m.ObserveDecision(ratelimit.ClassGeneral, ratelimit.Decision{Allowed: true, FailOpen: true})
	requireCount(t, reg, 3, "scripture_cache_ratelimit_decisions_total")
}

func TestMetrics_WatchBreaker(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.New(reg, nil)
	b := breaker.New(breaker.Config{Name: "scripture-api"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.WatchBreaker(ctx, b)

	b.ForceOpen()
	require.Eventually(t, func() bool {
		n, err := testutil.GatherAndCount(reg, "scripture_cache_breaker_transitions_total")
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRegisterStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := cache.New(cache.Options[string]{})
	s.Set("a", "x")
	s.Get("a")
	s.Get("b")
	require.NoError(t, monitoring.RegisterStore(reg, "l1", s.Stats))
	requireCount(t, reg, 6)
}
