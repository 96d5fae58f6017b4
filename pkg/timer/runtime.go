package timer

import (
	"sync"
	"time"
)

// Executor runs fn on the owner's event loop.
type Executor func(fn func())

// Runtime is a wall-clock timer service. Expired timers are handed to the
// executor instead of running on the time package's goroutine.
type Runtime struct {
	mu     sync.Mutex
	next   Handle
	timers map[Handle]*time.Timer
	exec   Executor
}

// NewRuntime creates a wall-clock timer service. If exec is nil,
// callbacks run directly on the timer goroutine.
func NewRuntime(exec Executor) *Runtime {
	if exec == nil {
		exec = func(fn func()) { fn() }
	}
	return &Runtime{
		timers: make(map[Handle]*time.Timer),
		exec:   exec,
	}
}

// Create arms a timer.
func (r *Runtime) Create(d time.Duration, fn Callback) Handle {
	if !ValidDuration(d) {
		return InvalidHandle
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	if r.next == InvalidHandle {
		r.next++
	}
	h := r.next

	r.timers[h] = time.AfterFunc(d, func() {
		r.mu.Lock()
		_, exists := r.timers[h]
		delete(r.timers, h)
		r.mu.Unlock()

		if !exists {
			return
		}
		r.exec(func() { fn(h) })
	})
	return h
}

// Delete cancels a timer.
func (r *Runtime) Delete(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, exists := r.timers[h]; exists {
		t.Stop()
		delete(r.timers, h)
	}
}

// Count returns the number of armed timers.
func (r *Runtime) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// StopAll cancels every armed timer.
func (r *Runtime) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for h, t := range r.timers {
		t.Stop()
		delete(r.timers, h)
	}
}

// Compile-time interface satisfaction check.
var _ Service = (*Runtime)(nil)
