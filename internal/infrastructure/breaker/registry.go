package breaker

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds one breaker per protected resource. It is constructed once
// at startup and passed to whoever needs breaker access.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// Register adds b under its name. Names must be unique.
func (r *Registry) Register(b *Breaker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.breakers[b.Name()]; exists {
		return fmt.Errorf("circuit breaker %q already registered", b.Name())
	}
	r.breakers[b.Name()] = b
	return nil
}

// Get returns the breaker registered under name.
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// All returns the registered breakers sorted by name.
func (r *Registry) All() []*Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Stats returns a snapshot for every registered breaker.
func (r *Registry) Stats() []Stats {
	all := r.All()
	out := make([]Stats, 0, len(all))
	for _, b := range all {
		out = append(out, b.Stats())
	}
	return out
}
