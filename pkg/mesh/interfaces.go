package mesh

// Sender transmits outbound model messages. Implementations fill in the
// network id and source address.
type Sender interface {
	Send(msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(msg Message) error

// Send calls f(msg).
func (f SenderFunc) Send(msg Message) error {
	return f(msg)
}

// Radio controls the local radio.
type Radio interface {
	// SetTxPower sets the transmit power in dBm.
	SetTxPower(dBm int8) error
}

// NopRadio accepts every setting and does nothing.
type NopRadio struct{}

// SetTxPower does nothing.
func (NopRadio) SetTxPower(int8) error { return nil }

// Handler processes inbound messages for one model.
type Handler interface {
	HandleMessage(msg Message)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(msg Message)

// HandleMessage calls f(msg).
func (f HandlerFunc) HandleMessage(msg Message) {
	f(msg)
}

// Compile-time interface satisfaction checks.
var (
	_ Sender  = SenderFunc(nil)
	_ Radio   = NopRadio{}
	_ Handler = HandlerFunc(nil)
)
