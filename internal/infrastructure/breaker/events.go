package breaker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event describes one state transition.
type Event struct {
	ID      uuid.UUID `json:"id"`
	Breaker string    `json:"breaker"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	At      time.Time `json:"at"`
	Reason  string    `json:"reason"`
}

func newEvent(name string, from, to State, at time.Time, reason string) Event {
	return Event{ID: uuid.New(), Breaker: name, From: from, To: to, At: at, Reason: reason}
}

// notifier is a non-blocking fan-out point for transition events.
type notifier struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
	drops  atomic.Int64
}

func newNotifier(size int) *notifier {
	return &notifier{ch: make(chan Event, size)}
}

func (n *notifier) C() <-chan Event { return n.ch }

func (n *notifier) publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.ch <- ev:
	default:
		n.drops.Add(1)
	}
}

func (n *notifier) dropped() int64 { return n.drops.Load() }

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.ch)
}
