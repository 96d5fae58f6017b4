package mesh

import (
	"encoding"
	"fmt"
	"slices"

	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// Well-known destinations.
const (
	// AddrUnassigned is never a valid source or destination.
	AddrUnassigned uint16 = 0x0000

	// AddrBroadcast reaches every node of the network.
	AddrBroadcast uint16 = 0xFFFF
)

// DefaultTTL is the TTL used for model responses and autonomous reports.
const DefaultTTL uint8 = 50

// Message is a model message with its transport metadata.
type Message struct {
	NetworkID uint8
	Src       uint16
	Dst       uint16
	TTL       uint8

	// RSSI is the receive signal strength in dBm. Zero for outbound messages.
	RSSI int8

	Opcode  wire.Opcode
	Payload []byte
}

// String returns a short description for logs.
func (m Message) String() string {
	return fmt.Sprintf("%s %04x->%04x ttl=%d rssi=%d len=%d",
		m.Opcode, m.Src, m.Dst, m.TTL, m.RSSI, len(m.Payload))
}

// NewMessage builds an outbound message from a payload.
func NewMessage(dst uint16, ttl uint8, op wire.Opcode, payload encoding.BinaryMarshaler) (Message, error) {
	b, err := payload.MarshalBinary()
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", op, err)
	}
	return Message{Dst: dst, TTL: ttl, Opcode: op, Payload: b}, nil
}

// ToFrame converts the message into a bearer frame.
func (m Message) ToFrame() *wire.Frame {
	return &wire.Frame{
		NetworkID: m.NetworkID,
		Src:       m.Src,
		Dst:       m.Dst,
		TTL:       m.TTL,
		Opcode:    m.Opcode,
		Payload:   m.Payload,
	}
}

// FromFrame converts a received frame into a message. rssi is used when
// the frame does not carry one.
func FromFrame(f *wire.Frame, rssi int8) Message {
	if f.RSSI != nil {
		rssi = *f.RSSI
	}
	return Message{
		NetworkID: f.NetworkID,
		Src:       f.Src,
		Dst:       f.Dst,
		TTL:       f.TTL,
		RSSI:      rssi,
		Opcode:    f.Opcode,
		Payload:   f.Payload,
	}
}

// Accepts reports whether a node with device id self and the given group
// memberships should process a message addressed to dst.
func Accepts(dst, self uint16, groups []uint16) bool {
	if dst == AddrBroadcast || dst == self {
		return true
	}
	return slices.Contains(groups, dst)
}
