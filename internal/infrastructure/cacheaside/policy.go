package cacheaside

import (
	"sort"
	"sync"
	"time"
)

// Category groups lookups that share a freshness profile.
type Category string

const (
	// CategoryReference covers translations and book lists, which rarely change.
	CategoryReference Category = "reference"
	CategoryChapter   Category = "chapter"
	CategoryVerse     Category = "verse"
	// CategorySearch results are derived and go stale quickly.
	CategorySearch   Category = "search"
	CategoryCrossRef Category = "crossref"
	CategoryParallel Category = "parallel"
)

// DefaultTTLs are applied when no explicit policy is configured.
func DefaultTTLs() map[Category]time.Duration {
	return map[Category]time.Duration{
		CategoryReference: 24 * time.Hour,
		CategoryChapter:   time.Hour,
		CategoryVerse:     6 * time.Hour,
		CategorySearch:    5 * time.Minute,
		CategoryCrossRef:  12 * time.Hour,
		CategoryParallel:  time.Hour,
	}
}

// Policy maps categories to TTLs. It can be updated at runtime, e.g. when the
// policy file changes.
type Policy struct {
	mu   sync.RWMutex
	ttls map[Category]time.Duration
}

// NewPolicy starts from DefaultTTLs and applies overrides on top.
func NewPolicy(overrides map[Category]time.Duration) *Policy {
	p := &Policy{ttls: DefaultTTLs()}
	p.Apply(overrides)
	return p
}

// TTL returns the TTL for c; ok=false for unknown categories.
func (p *Policy) TTL(c Category) (time.Duration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ttl, ok := p.ttls[c]
	return ttl, ok
}

// Set registers or updates a single category. Non-positive TTLs are ignored.
func (p *Policy) Set(c Category, ttl time.Duration) {
	if ttl <= 0 || c == "" {
		return
	}
	p.mu.Lock()
	p.ttls[c] = ttl
	p.mu.Unlock()
}

// Apply merges overrides into the policy.
func (p *Policy) Apply(overrides map[Category]time.Duration) {
	for c, ttl := range overrides {
		p.Set(c, ttl)
	}
}

// Snapshot copies the current TTL table.
func (p *Policy) Snapshot() map[Category]time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[Category]time.Duration, len(p.ttls))
	for c, ttl := range p.ttls {
		out[c] = ttl
	}
	return out
}

// Categories lists known categories in name order.
func (p *Policy) Categories() []Category {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Category, 0, len(p.ttls))
	for c := range p.ttls {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
