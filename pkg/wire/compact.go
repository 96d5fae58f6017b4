package wire

import (
	"errors"
	"fmt"
)

// Compact frame layout, used where CBOR does not fit (legacy BLE
// advertisements carry at most 24 bytes of manufacturer data):
//
//	networkId(u8) src(u16) dst(u16) ttl(u8) opcode(u16) payload...
const (
	CompactHeaderSize = 8
	MaxCompactSize    = 24
)

// ErrFrameTooLarge is returned when a frame does not fit the compact limit.
var ErrFrameTooLarge = errors.New("frame too large")

// EncodeCompact encodes f in the compact layout. The RSSI field is not
// carried.
func EncodeCompact(f *Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	n := CompactHeaderSize + len(f.Payload)
	if n > MaxCompactSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, MaxCompactSize)
	}
	b := make([]byte, n)
	b[0] = f.NetworkID
	le.PutUint16(b[1:], f.Src)
	le.PutUint16(b[3:], f.Dst)
	b[5] = f.TTL
	le.PutUint16(b[6:], uint16(f.Opcode))
	copy(b[CompactHeaderSize:], f.Payload)
	return b, nil
}

// DecodeCompact is the inverse of EncodeCompact.
func DecodeCompact(b []byte) (*Frame, error) {
	if len(b) == 0 {
		return nil, ErrEmptyFrame
	}
	if err := need(b, CompactHeaderSize, "compact frame"); err != nil {
		return nil, err
	}
	f := &Frame{
		NetworkID: b[0],
		Src:       le.Uint16(b[1:]),
		Dst:       le.Uint16(b[3:]),
		TTL:       b[5],
		Opcode:    Opcode(le.Uint16(b[6:])),
		Payload:   append([]byte{}, b[CompactHeaderSize:]...),
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	return f, nil
}
