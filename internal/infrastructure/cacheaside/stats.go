package cacheaside

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/avatarctic/scripture-cache/internal/infrastructure/cache"
)

type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	errors    atomic.Int64
	fallbacks atomic.Int64
}

type categoryCounters struct {
	m *xsync.MapOf[Category, *counters]
}

func newCategoryCounters() *categoryCounters {
	return &categoryCounters{m: xsync.NewMapOf[Category, *counters]()}
}

func (cc *categoryCounters) get(c Category) *counters {
	v, _ := cc.m.LoadOrCompute(c, func() *counters { return &counters{} })
	return v
}

func (cc *categoryCounters) reset() {
	cc.m.Range(func(_ Category, v *counters) bool {
		v.hits.Store(0)
		v.misses.Store(0)
		v.errors.Store(0)
		v.fallbacks.Store(0)
		return true
	})
}

// CategoryStats is the per-category breakdown in DetailedStats.
type CategoryStats struct {
	Category  Category      `json:"category"`
	TTL       time.Duration `json:"ttl"`
	Entries   int           `json:"entries"`
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Errors    int64         `json:"errors"`
	Fallbacks int64         `json:"fallbacks"`
}

type DetailedStats struct {
	cache.Stats
	Categories []CategoryStats `json:"categories"`
}

// DetailedCacheStats combines store statistics with per-category counters.
func (p *Provider) DetailedCacheStats() DetailedStats {
	entries := make(map[Category]int)
	for _, k := range p.store.Keys() {
		c, _, _ := strings.Cut(k, KeySeparator)
		entries[Category(c)]++
	}

	ttls := p.policy.Snapshot()
	seen := make(map[Category]struct{}, len(ttls))
	out := make([]CategoryStats, 0, len(ttls))
	add := func(c Category) {
		if _, dup := seen[c]; dup {
			return
		}
		seen[c] = struct{}{}
		cs := CategoryStats{Category: c, TTL: ttls[c], Entries: entries[c]}
		if v, ok := p.counters.m.Load(c); ok {
			cs.Hits = v.hits.Load()
			cs.Misses = v.misses.Load()
			cs.Errors = v.errors.Load()
			cs.Fallbacks = v.fallbacks.Load()
		}
		out = append(out, cs)
	}
	for c := range ttls {
		add(c)
	}
	p.counters.m.Range(func(c Category, _ *counters) bool {
		add(c)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })

	return DetailedStats{Stats: p.store.Stats(), Categories: out}
}
