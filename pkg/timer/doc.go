// Package timer implements the single-shot timer service consumed by the
// mesh model handlers.
//
// The platform timer primitive is deliberately small: a timer is created
// with a duration and a callback, identified by a Handle, and can be
// deleted by handle. A deleted timer never fires. There is no periodic
// mode; periodic behavior is expressed by re-arming from the callback.
//
// # Duration Ceiling
//
// A single timer cannot exceed MaxDuration (2100 seconds). Longer logical
// intervals are composed from several chunks by the caller.
//
// # Handle Discipline
//
// Each logical clock of a model is represented by a Slot. Arming a Slot
// always deletes the previously armed timer first, and a firing whose
// handle no longer matches the Slot's current handle is ignored. This
// protects against a callback racing with a reschedule.
//
// # Implementations
//
//   - Sim: a simulated clock advanced explicitly, used by tests and
//     in-process simulations. Callbacks run on the goroutine calling Advance.
//   - Runtime: wall-clock timers built on time.AfterFunc. Callbacks are
//     handed to an executor so they run on the node's event loop.
package timer
