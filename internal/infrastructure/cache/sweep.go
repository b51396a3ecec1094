package cache

import "time"

// StartSweep launches a goroutine that removes expired entries every interval.
// Calling it again replaces the running sweep.
func (s *Store[V]) StartSweep(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.Stop()

	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	s.sweepStop, s.sweepDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-stop:
				return
			}
		}
	}()
}

// Stop cancels the background sweep and waits for it to exit. Safe to call
// more than once.
func (s *Store[V]) Stop() {
	s.sweepMu.Lock()
	stop, done := s.sweepStop, s.sweepDone
	s.sweepStop, s.sweepDone = nil, nil
	s.sweepMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Sweep removes every expired entry and returns how many were dropped.
func (s *Store[V]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Clock()
	n := 0
	for _, e := range s.items {
		if e.expired(now) {
			s.removeLocked(e, RemovedExpired)
			n++
		}
	}
	return n
}
