package connection

// State is the state of a link to a remote endpoint.
type State uint8

const (
	// StateDisconnected is the state before the first connection attempt.
	StateDisconnected State = iota

	// StateConnecting indicates the first connection attempt is in progress.
	StateConnecting

	// StateConnected indicates frames can be exchanged.
	StateConnected

	// StateReconnecting indicates the link was lost and is being redialled.
	StateReconnecting

	// StateClosed is final.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
