package timer

import (
	"errors"
	"time"
)

// MaxDuration is the longest duration a single timer may be armed for.
const MaxDuration = 2100 * time.Second

// Timer errors.
var (
	ErrInvalidDuration = errors.New("invalid timer duration")
)

// Handle identifies an armed timer. The zero value never refers to a timer.
type Handle uint32

// InvalidHandle is returned when no timer was created.
const InvalidHandle Handle = 0

// Callback is invoked when a timer fires. It receives the handle of the
// timer that fired.
type Callback func(h Handle)

// Service is the single-shot timer primitive.
type Service interface {
	// Create arms a timer that fires once after d. It returns
	// InvalidHandle if d is outside (0, MaxDuration].
	Create(d time.Duration, fn Callback) Handle

	// Delete cancels the timer. Deleting an unknown or already fired
	// handle is a no-op.
	Delete(h Handle)
}

// ValidDuration reports whether d can be armed in a single timer.
func ValidDuration(d time.Duration) bool {
	return d > 0 && d <= MaxDuration
}

// Slot tracks the currently armed timer of one logical clock.
type Slot struct {
	svc    Service
	handle Handle
}

// NewSlot creates an idle slot on the given service.
func NewSlot(svc Service) *Slot {
	return &Slot{svc: svc}
}

// Arm cancels any timer armed in this slot and arms a new one. The
// callback only runs if the timer is still the slot's current one when it
// fires. Returns ErrInvalidDuration (and leaves the slot idle) if d cannot
// be armed.
func (s *Slot) Arm(d time.Duration, fn func()) error {
	s.Cancel()

	if !ValidDuration(d) {
		return ErrInvalidDuration
	}

	h := s.svc.Create(d, func(fired Handle) {
		if fired != s.handle {
			return // stale
		}
		s.handle = InvalidHandle
		fn()
	})
	if h == InvalidHandle {
		return ErrInvalidDuration
	}
	s.handle = h
	return nil
}

// Cancel deletes the armed timer, if any.
func (s *Slot) Cancel() {
	if s.handle == InvalidHandle {
		return
	}
	s.svc.Delete(s.handle)
	s.handle = InvalidHandle
}

// Active reports whether a timer is currently armed in this slot.
func (s *Slot) Active() bool {
	return s.handle != InvalidHandle
}

// Handle returns the currently armed handle, or InvalidHandle.
func (s *Slot) Handle() Handle {
	return s.handle
}
