// Package connection provides link state and reconnection delays for mesh
// bearers that depend on a remote endpoint, such as a TCP gateway.
//
// Delays grow exponentially from Initial to Max with random jitter added
// on top, so gateways restarted at the same time are not redialled by
// every node at once:
//
//	delay = base + random(0, base * Jitter)
//
// The base resets to Initial after a successful connection.
package connection
