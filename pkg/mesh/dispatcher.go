package mesh

import (
	"log/slog"

	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// Dispatcher routes inbound messages to model handlers by opcode. It is
// not safe for concurrent use; the owning node calls it from its event
// loop only.
type Dispatcher struct {
	handlers map[wire.Opcode]Handler
	logger   *slog.Logger
}

// NewDispatcher creates an empty dispatcher. logger may be nil.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		handlers: make(map[wire.Opcode]Handler),
		logger:   logger,
	}
}

// Register routes the given opcodes to h, replacing earlier registrations.
func (d *Dispatcher) Register(h Handler, opcodes ...wire.Opcode) {
	for _, op := range opcodes {
		d.handlers[op] = h
	}
}

// Dispatch delivers msg to its handler. Returns false if no handler is
// registered for the opcode; such messages are dropped.
func (d *Dispatcher) Dispatch(msg Message) bool {
	h, ok := d.handlers[msg.Opcode]
	if !ok {
		d.logger.Debug("dropping message with unhandled opcode", "opcode", msg.Opcode.String(), "src", msg.Src)
		return false
	}
	h.HandleMessage(msg)
	return true
}

// Opcodes returns the number of registered opcodes.
func (d *Dispatcher) Opcodes() int {
	return len(d.handlers)
}
