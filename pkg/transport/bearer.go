package transport

import (
	"errors"

	"github.com/csrmesh/csrmesh-go/pkg/mesh"
)

// Bearer errors.
var (
	ErrClosed     = errors.New("bearer closed")
	ErrNotStarted = errors.New("bearer not started")
	ErrQueueFull  = errors.New("bearer send queue full")
)

// Receiver accepts an inbound message. It reports whether the message was
// taken; bearers ignore the result apart from logging.
type Receiver func(msg mesh.Message) bool

// Bearer carries mesh messages.
type Bearer interface {
	mesh.Sender

	// Start begins delivering inbound messages to recv.
	Start(recv Receiver) error

	// Close stops the bearer. Later Sends fail with ErrClosed.
	Close() error
}
