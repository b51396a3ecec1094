package breaker

import "time"

// latencyRing keeps the last N samples; the oldest is overwritten first.
type latencyRing struct {
	samples []time.Duration
	next    int
	full    bool
	sum     time.Duration
}

func newLatencyRing(n int) *latencyRing {
	return &latencyRing{samples: make([]time.Duration, n)}
}

func (r *latencyRing) add(d time.Duration) {
	if r.full {
		r.sum -= r.samples[r.next]
	}
	r.samples[r.next] = d
	r.sum += d
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
}

func (r *latencyRing) len() int {
	if r.full {
		return len(r.samples)
	}
	return r.next
}

func (r *latencyRing) average() time.Duration {
	n := r.len()
	if n == 0 {
		return 0
	}
	return r.sum / time.Duration(n)
}

func (r *latencyRing) reset() {
	for i := range r.samples {
		r.samples[i] = 0
	}
	r.next, r.full, r.sum = 0, false, 0
}
