// Package tracker implements the Tracker model: a node that listens for
// asset announces, classifies their proximity by RSSI and reports them to
// the mesh.
//
// Sightings first enter a pending cache and wait a delay that shrinks with
// signal strength, so the tracker hearing an asset loudest reports first.
// Trackers that hear a TRACKER_REPORT with a stronger signal than their own
// drop their pending sighting instead of reporting it. Surviving sightings
// are promoted to the confirmed cache, reported, and kept until they age out
// or a peer reports a stronger signal.
//
// Two timers drive the model: a pending-delay tick every DelayFactor
// milliseconds while pending entries exist, and a 1 Hz aging tick while any
// cache holds entries. Both counters are 16 bits and wrap.
//
// A Tracker is not safe for concurrent use; pkg/node serializes all calls
// on its event loop.
package tracker
