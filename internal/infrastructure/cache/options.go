package cache

import "time"

// Options configures a Store.
type Options[V any] struct {
	// MaxSize bounds the number of entries. Default 1000.
	MaxSize int
	// DefaultTTL applies when Set is called without a TTL. Default 5m.
	DefaultTTL time.Duration
	// SweepInterval starts a background expiry sweep when positive.
	SweepInterval time.Duration
	// Sizer estimates the payload size of a value in bytes.
	Sizer func(V) int64
	// Clock returns the current time; tests inject a fake one.
	Clock func() time.Time
	// OnEvict is called with the store lock held and must not call back into the store.
	OnEvict func(key string, value V, reason RemovalReason)
}

func (o Options[V]) withDefaults() Options[V] {
	if o.MaxSize <= 0 {
		o.MaxSize = defaultMaxSize
	}
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = defaultTTL
	}
	if o.Sizer == nil {
		o.Sizer = DefaultSizer[V]
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// DefaultSizer measures byte slices and strings and assumes a small fixed
// payload for everything else.
func DefaultSizer[V any](v V) int64 {
	switch t := any(v).(type) {
	case []byte:
		return int64(len(t))
	case string:
		return int64(len(t))
	case nil:
		return 0
	default:
		return 64
	}
}
