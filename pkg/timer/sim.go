package timer

import (
	"sync"
	"time"
)

// Sim is a simulated timer service. Time only moves when Advance or Step
// is called, and due callbacks run on the calling goroutine in firing
// order (ties broken by creation order).
type Sim struct {
	mu      sync.Mutex
	now     time.Duration
	next    Handle
	seq     uint64
	pending map[Handle]*simTimer
	longest time.Duration
	created int
}

type simTimer struct {
	handle Handle
	at     time.Duration
	seq    uint64
	fn     Callback
}

// NewSim creates a simulated clock at time zero.
func NewSim() *Sim {
	return &Sim{pending: make(map[Handle]*simTimer)}
}

// Create arms a simulated timer.
func (s *Sim) Create(d time.Duration, fn Callback) Handle {
	if !ValidDuration(d) {
		return InvalidHandle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	if s.next == InvalidHandle {
		s.next++
	}
	s.seq++
	s.created++
	if d > s.longest {
		s.longest = d
	}
	s.pending[s.next] = &simTimer{
		handle: s.next,
		at:     s.now + d,
		seq:    s.seq,
		fn:     fn,
	}
	return s.next
}

// Delete cancels a simulated timer.
func (s *Sim) Delete(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, h)
}

// Now returns the simulated time elapsed since creation.
func (s *Sim) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of armed timers.
func (s *Sim) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Created returns the number of timers created so far.
func (s *Sim) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Longest returns the longest duration ever requested from Create.
func (s *Sim) Longest() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.longest
}

// Advance moves time forward by d, firing every timer that becomes due.
// Timers armed by callbacks fire too if they fall inside the window.
// Returns the number of callbacks run.
func (s *Sim) Advance(d time.Duration) int {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	fired := 0
	for {
		t := s.popDue(target)
		if t == nil {
			break
		}
		t.fn(t.handle)
		fired++
	}

	s.mu.Lock()
	s.now = target
	s.mu.Unlock()
	return fired
}

// Step jumps to the next armed timer and fires it. Returns false if no
// timer is armed.
func (s *Sim) Step() bool {
	s.mu.Lock()
	t := s.earliest()
	if t == nil {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	return s.Advance(t.at-s.Now()) > 0
}

// popDue removes and returns the earliest timer due at or before target,
// moving the clock to its deadline.
func (s *Sim) popDue(target time.Duration) *simTimer {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.earliest()
	if t == nil || t.at > target {
		return nil
	}
	delete(s.pending, t.handle)
	s.now = t.at
	return t
}

func (s *Sim) earliest() *simTimer {
	var best *simTimer
	for _, t := range s.pending {
		if best == nil || t.at < best.at || (t.at == best.at && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

// Compile-time interface satisfaction check.
var _ Service = (*Sim)(nil)
