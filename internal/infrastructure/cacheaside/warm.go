package cacheaside

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/avatarctic/scripture-cache/internal/infrastructure/cache"
)

// Report summarizes a warm or prefetch run.
type Report struct {
	Requested int           `json:"requested"`
	Loaded    int           `json:"loaded"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Errors    []string      `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Seeds returns the configured warm-up list.
func (p *Provider) Seeds() []Query {
	p.seedMu.RLock()
	defer p.seedMu.RUnlock()
	out := make([]Query, len(p.seeds))
	copy(out, p.seeds)
	return out
}

// SetSeeds replaces the warm-up list.
func (p *Provider) SetSeeds(seeds []Query) {
	cp := make([]Query, len(seeds))
	copy(cp, seeds)
	p.seedMu.Lock()
	p.seeds = cp
	p.seedMu.Unlock()
}

// WarmCache loads seeds (the configured list when nil) and inserts every
// success in one batch. Individual failures are logged and skipped.
func (p *Provider) WarmCache(ctx context.Context, seeds []Query) Report {
	if seeds == nil {
		seeds = p.Seeds()
	}
	return p.populate(ctx, "warm", seeds, false)
}

// Prefetch loads queries that are not cached yet.
func (p *Provider) Prefetch(ctx context.Context, queries []Query) Report {
	return p.populate(ctx, "prefetch", queries, true)
}

func (p *Provider) populate(ctx context.Context, op string, queries []Query, skipCached bool) Report {
	start := p.now()
	rep := Report{Requested: len(queries)}

	var (
		mu      sync.Mutex
		entries []cache.Entry[any]
		g       errgroup.Group
	)
	g.SetLimit(p.concurrency)

	fail := func(q Query, err error) {
		mu.Lock()
		rep.Failed++
		rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", q.Key(), err))
		mu.Unlock()
		p.logger.WithFields(logrus.Fields{
			"operation": op,
			"key":       q.Key(),
			"error":     err.Error(),
		}).Warn("Cache population entry failed")
	}

	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		key := q.Key()
		if _, dup := seen[key]; dup {
			rep.Skipped++
			continue
		}
		seen[key] = struct{}{}
		if skipCached && p.store.Has(key) {
			rep.Skipped++
			continue
		}
		ttl, ok := p.policy.TTL(q.Category)
		if !ok {
			fail(q, fmt.Errorf("%w: %s", ErrUnknownCategory, q.Category))
			continue
		}
		f, ok := p.fetcher(q.Category)
		if !ok {
			fail(q, fmt.Errorf("%w: %s", ErrNoFetcher, q.Category))
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				fail(q, err)
				return nil
			}
			res, err := p.fetch(ctx, q, f)
			if err != nil {
				fail(q, err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if res.degraded {
				rep.Skipped++
				return nil
			}
			entries = append(entries, cache.Entry[any]{Key: key, Value: res.value, TTL: ttl})
			return nil
		})
	}
	_ = g.Wait()

	p.store.Warm(entries)
	rep.Loaded = len(entries)
	rep.Duration = p.now().Sub(start)

	p.logger.WithFields(logrus.Fields{
		"operation": op,
		"requested": rep.Requested,
		"loaded":    rep.Loaded,
		"skipped":   rep.Skipped,
		"failed":    rep.Failed,
		"duration":  rep.Duration.String(),
	}).Info("Cache population finished")
	return rep
}
