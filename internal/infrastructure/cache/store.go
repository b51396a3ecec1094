// Package cache provides a generic in-memory store with LRU eviction and per-entry TTL.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxSize = 1000
	defaultTTL     = 5 * time.Minute

	// entryOverhead approximates the bookkeeping bytes held per entry
	// (list element, map bucket slot, timestamps).
	entryOverhead = 96
)

// Entry is the bulk-load unit accepted by Warm.
type Entry[V any] struct {
	Key   string
	Value V
	// TTL of zero falls back to the store default.
	TTL time.Duration
}

// Stats is a point-in-time view of the store.
type Stats struct {
	Size            int           `json:"size"`
	MaxSize         int           `json:"max_size"`
	Hits            int64         `json:"hits"`
	Misses          int64         `json:"misses"`
	HitRate         float64       `json:"hit_rate"`
	Evictions       int64         `json:"evictions"`
	Expirations     int64         `json:"expirations"`
	MemoryEstimate  int64         `json:"memory_estimate_bytes"`
	AverageEntryAge time.Duration `json:"average_entry_age"`
}

// RemovalReason tells an OnEvict callback why an entry left the store.
type RemovalReason int

const (
	RemovedEvicted RemovalReason = iota
	RemovedExpired
)

func (r RemovalReason) String() string {
	switch r {
	case RemovedEvicted:
		return "evicted"
	case RemovedExpired:
		return "expired"
	default:
		return "unknown"
	}
}

type entry[V any] struct {
	key            string
	value          V
	size           int64
	createdAt      time.Time
	ttl            time.Duration
	hitCount       int64
	lastAccessedAt time.Time
	element        *list.Element
}

func (e *entry[V]) expired(now time.Time) bool {
	return !now.Before(e.createdAt.Add(e.ttl))
}

// Store is a thread-safe LRU cache with per-entry TTL.
//
// Recency is tracked by a doubly linked list: the front is the most recently
// used entry, the back is the next eviction candidate. Every Get and Set moves
// the touched entry to the front. Expiry is enforced by every accessor; the
// optional sweep only keeps Len accurate when nobody is reading.
type Store[V any] struct {
	mu      sync.Mutex
	items   map[string]*entry[V]
	lru     *list.List
	opts    Options[V]
	memSize int64

	hits        int64
	misses      int64
	evictions   int64
	expirations int64

	sweepMu   sync.Mutex
	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New creates a store. Invalid or zero options fall back to defaults.
func New[V any](opts Options[V]) *Store[V] {
	opts = opts.withDefaults()
	s := &Store[V]{
		items: make(map[string]*entry[V]),
		lru:   list.New(),
		opts:  opts,
	}
	if opts.SweepInterval > 0 {
		s.StartSweep(opts.SweepInterval)
	}
	return s
}

// Get returns the value for key if it is present and not expired.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	e, ok := s.items[key]
	if !ok {
		s.misses++
		return zero, false
	}
	now := s.opts.Clock()
	if e.expired(now) {
		s.removeLocked(e, RemovedExpired)
		s.misses++
		return zero, false
	}

	s.lru.MoveToFront(e.element)
	e.hitCount++
	e.lastAccessedAt = now
	s.hits++
	return e.value, true
}

// Peek returns the value without touching recency or statistics.
func (s *Store[V]) Peek(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	e, ok := s.items[key]
	if !ok || e.expired(s.opts.Clock()) {
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the default TTL.
func (s *Store[V]) Set(key string, value V) {
	s.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key. A non-positive ttl uses the default TTL.
func (s *Store[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value, ttl, s.opts.Clock())
}

// Warm inserts entries under a single lock acquisition.
func (s *Store[V]) Warm(entries []Entry[V]) {
	if len(entries) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Clock()
	for _, en := range entries {
		s.setLocked(en.Key, en.Value, en.TTL, now)
	}
}

func (s *Store[V]) setLocked(key string, value V, ttl time.Duration, now time.Time) {
	if ttl <= 0 {
		ttl = s.opts.DefaultTTL
	}
	size := int64(len(key)) + s.opts.Sizer(value) + entryOverhead

	if e, ok := s.items[key]; ok {
		s.memSize += size - e.size
		e.value = value
		e.size = size
		e.createdAt = now
		e.ttl = ttl
		e.lastAccessedAt = now
		s.lru.MoveToFront(e.element)
		return
	}

	// Expired entries are dead weight; drop them before evicting live ones.
	if len(s.items) >= s.opts.MaxSize {
		if back := s.lru.Back(); back != nil {
			if oldest := back.Value.(*entry[V]); oldest.expired(now) {
				s.removeLocked(oldest, RemovedExpired)
			}
		}
	}
	for len(s.items) >= s.opts.MaxSize && s.lru.Len() > 0 {
		oldest := s.lru.Back().Value.(*entry[V])
		s.removeLocked(oldest, RemovedEvicted)
	}

	e := &entry[V]{
		key:            key,
		value:          value,
		size:           size,
		createdAt:      now,
		ttl:            ttl,
		lastAccessedAt: now,
	}
	e.element = s.lru.PushFront(e)
	s.items[key] = e
	s.memSize += size
}

// Delete removes key and reports whether it was present.
func (s *Store[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return false
	}
	s.unlinkLocked(e)
	return true
}

// DeletePrefix removes every key starting with prefix and returns the count.
func (s *Store[V]) DeletePrefix(prefix string) int {
	return s.deleteWhere(func(k string) bool { return strings.HasPrefix(k, prefix) })
}

// DeleteMatching removes every key matching pattern (see MatchPattern).
func (s *Store[V]) DeleteMatching(pattern string) int {
	return s.deleteWhere(func(k string) bool { return MatchPattern(k, pattern) })
}

func (s *Store[V]) deleteWhere(match func(string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, e := range s.items {
		if match(k) {
			s.unlinkLocked(e)
			n++
		}
	}
	return n
}

// Clear removes all entries and resets statistics.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*entry[V])
	s.lru.Init()
	s.memSize = 0
	s.hits, s.misses, s.evictions, s.expirations = 0, 0, 0, 0
}

// Has reports whether key is present and live. An expired entry is removed.
func (s *Store[V]) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return false
	}
	if e.expired(s.opts.Clock()) {
		s.removeLocked(e, RemovedExpired)
		return false
	}
	return true
}

// Len returns the number of stored entries, including expired ones the sweep
// has not reached yet.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Keys returns live keys ordered from most to least recently used.
func (s *Store[V]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Clock()
	keys := make([]string, 0, len(s.items))
	for el := s.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[V])
		if !e.expired(now) {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Stats returns current statistics.
func (s *Store[V]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Size:           len(s.items),
		MaxSize:        s.opts.MaxSize,
		Hits:           s.hits,
		Misses:         s.misses,
		Evictions:      s.evictions,
		Expirations:    s.expirations,
		MemoryEstimate: s.memSize,
	}
	if total := s.hits + s.misses; total > 0 {
		st.HitRate = float64(s.hits) / float64(total)
	}
	if len(s.items) > 0 {
		now := s.opts.Clock()
		var age time.Duration
		for _, e := range s.items {
			age += now.Sub(e.createdAt)
		}
		st.AverageEntryAge = age / time.Duration(len(s.items))
	}
	return st
}

// removeLocked drops e and accounts for it as an eviction or expiry.
func (s *Store[V]) removeLocked(e *entry[V], reason RemovalReason) {
	s.unlinkLocked(e)
	switch reason {
	case RemovedEvicted:
		s.evictions++
	case RemovedExpired:
		s.expirations++
	}
	if s.opts.OnEvict != nil {
		s.opts.OnEvict(e.key, e.value, reason)
	}
}

func (s *Store[V]) unlinkLocked(e *entry[V]) {
	if e.element != nil {
		s.lru.Remove(e.element)
	}
	delete(s.items, e.key)
	s.memSize -= e.size
}

// MatchPattern reports whether str matches pattern, where every '*' matches
// any run of characters (including none) and everything else is literal. The
// redis store translates patterns to the same semantics.
func MatchPattern(str, pattern string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return str == pattern
	}
	first, last := parts[0], parts[len(parts)-1]
	if len(str) < len(first)+len(last) || !strings.HasPrefix(str, first) || !strings.HasSuffix(str, last) {
		return false
	}
	rest := str[len(first) : len(str)-len(last)]
	for _, mid := range parts[1 : len(parts)-1] {
		i := strings.Index(rest, mid)
		if i < 0 {
			return false
		}
		rest = rest[i+len(mid):]
	}
	return true
}
