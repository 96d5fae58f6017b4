// Package asset implements the Asset model: a node attached to a tracked
// object that periodically broadcasts ASSET_ANNOUNCE messages.
//
// The broadcast scheduler sends NumAnnounces announces spaced
// AnnounceInterval milliseconds apart, then waits Interval seconds before
// the next burst. Intervals longer than timer.MaxDuration are composed from
// full-length wrap chunks plus a remainder, so a single-shot timer bounded
// to about 35 minutes can realize any 16-bit second interval.
//
// A Scheduler is not safe for concurrent use. All calls, including timer
// callbacks, must be serialized by the caller (pkg/node runs them on one
// event loop goroutine).
package asset
