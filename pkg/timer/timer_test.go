package timer

import (
	"sync"
	"testing"
	"time"
)

func TestValidDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want bool
	}{
		{"Zero", 0, false},
		{"Negative", -time.Second, false},
		{"OneMillisecond", time.Millisecond, true},
		{"Max", MaxDuration, true},
		{"OverMax", MaxDuration + time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidDuration(tt.d); got != tt.want {
				t.Errorf("ValidDuration(%v) = %v, want %v", tt.d, got, tt.want)
			}
		})
	}
}

func TestSimFiresInOrder(t *testing.T) {
	sim := NewSim()

	var order []int
	sim.Create(30*time.Millisecond, func(Handle) { order = append(order, 3) })
	sim.Create(10*time.Millisecond, func(Handle) { order = append(order, 1) })
	sim.Create(20*time.Millisecond, func(Handle) { order = append(order, 2) })

	if n := sim.Advance(25 * time.Millisecond); n != 2 {
		t.Fatalf("Advance fired %d timers, want 2", n)
	}
	if sim.Now() != 25*time.Millisecond {
		t.Errorf("Now() = %v, want 25ms", sim.Now())
	}
	sim.Advance(10 * time.Millisecond)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("fire order = %v, want [1 2 3]", order)
	}
	if sim.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", sim.Pending())
	}
}

func TestSimRejectsOverlongDuration(t *testing.T) {
	sim := NewSim()

	if h := sim.Create(MaxDuration+time.Second, func(Handle) {}); h != InvalidHandle {
		t.Errorf("Create over MaxDuration = %d, want InvalidHandle", h)
	}
	if sim.Longest() != 0 {
		t.Errorf("Longest() = %v, want 0", sim.Longest())
	}
}

func TestSimDeleteNeverFires(t *testing.T) {
	sim := NewSim()

	fired := false
	h := sim.Create(time.Second, func(Handle) { fired = true })
	sim.Delete(h)
	sim.Advance(2 * time.Second)

	if fired {
		t.Error("deleted timer fired")
	}
	// Deleting again is a no-op.
	sim.Delete(h)
}

func TestSimCallbackRearms(t *testing.T) {
	sim := NewSim()

	count := 0
	var rearm Callback
	rearm = func(Handle) {
		count++
		sim.Create(time.Second, rearm)
	}
	sim.Create(time.Second, rearm)

	sim.Advance(5 * time.Second)
	if count != 5 {
		t.Errorf("callback ran %d times in 5s, want 5", count)
	}
}

func TestSimStep(t *testing.T) {
	sim := NewSim()

	if sim.Step() {
		t.Fatal("Step() on empty sim = true")
	}

	sim.Create(MaxDuration, func(Handle) {})
	if !sim.Step() {
		t.Fatal("Step() = false with armed timer")
	}
	if sim.Now() != MaxDuration {
		t.Errorf("Now() = %v, want %v", sim.Now(), MaxDuration)
	}
}

func TestSlotArmReplaces(t *testing.T) {
	sim := NewSim()
	slot := NewSlot(sim)

	first, second := 0, 0
	if err := slot.Arm(time.Second, func() { first++ }); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	if err := slot.Arm(2*time.Second, func() { second++ }); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}

	if sim.Pending() != 1 {
		t.Errorf("Pending() = %d after re-arm, want 1", sim.Pending())
	}

	sim.Advance(3 * time.Second)
	if first != 0 || second != 1 {
		t.Errorf("first=%d second=%d, want 0 and 1", first, second)
	}
	if slot.Active() {
		t.Error("slot still active after firing")
	}
}

func TestSlotIgnoresStaleHandle(t *testing.T) {
	// A service that records callbacks instead of running them, so a
	// firing can be delivered after the slot has moved on.
	rec := &recordingService{}
	slot := NewSlot(rec)

	ran := 0
	_ = slot.Arm(time.Second, func() { ran++ })
	stale := rec.last()
	_ = slot.Arm(time.Second, func() { ran += 10 })

	stale.fn(stale.h)
	if ran != 0 {
		t.Errorf("stale firing ran callback (ran=%d)", ran)
	}

	current := rec.last()
	current.fn(current.h)
	if ran != 10 {
		t.Errorf("current firing ran=%d, want 10", ran)
	}
}

func TestSlotInvalidDuration(t *testing.T) {
	slot := NewSlot(NewSim())

	if err := slot.Arm(0, func() {}); err != ErrInvalidDuration {
		t.Errorf("Arm(0) error = %v, want ErrInvalidDuration", err)
	}
	if slot.Active() {
		t.Error("slot active after failed Arm")
	}
}

func TestRuntimeFiresThroughExecutor(t *testing.T) {
	var mu sync.Mutex
	executed := 0
	done := make(chan Handle, 1)

	rt := NewRuntime(func(fn func()) {
		mu.Lock()
		executed++
		mu.Unlock()
		fn()
	})

	h := rt.Create(10*time.Millisecond, func(fired Handle) { done <- fired })

	select {
	case got := <-done:
		if got != h {
			t.Errorf("fired handle = %d, want %d", got, h)
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	mu.Lock()
	defer mu.Unlock()
	if executed != 1 {
		t.Errorf("executor ran %d times, want 1", executed)
	}
}

func TestRuntimeDelete(t *testing.T) {
	rt := NewRuntime(nil)

	fired := make(chan struct{}, 1)
	h := rt.Create(20*time.Millisecond, func(Handle) { fired <- struct{}{} })
	rt.Delete(h)

	if rt.Count() != 0 {
		t.Errorf("Count() = %d after Delete, want 0", rt.Count())
	}

	select {
	case <-fired:
		t.Error("deleted timer fired")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestRuntimeStopAll(t *testing.T) {
	rt := NewRuntime(nil)
	rt.Create(time.Second, func(Handle) {})
	rt.Create(time.Second, func(Handle) {})

	rt.StopAll()
	if rt.Count() != 0 {
		t.Errorf("Count() = %d after StopAll, want 0", rt.Count())
	}
}

type recorded struct {
	h  Handle
	fn Callback
}

type recordingService struct {
	next  Handle
	calls []recorded
}

func (r *recordingService) Create(_ time.Duration, fn Callback) Handle {
	r.next++
	r.calls = append(r.calls, recorded{h: r.next, fn: fn})
	return r.next
}

func (r *recordingService) Delete(Handle) {}

func (r *recordingService) last() recorded {
	return r.calls[len(r.calls)-1]
}
