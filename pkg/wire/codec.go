package wire

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Frame errors.
var (
	ErrEmptyFrame = errors.New("empty frame")
	ErrNoOpcode   = errors.New("frame has no opcode")
)

// encMode is the CBOR encoder mode for frames.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for frames.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Frame is the bearer-level envelope of one model message.
type Frame struct {
	NetworkID uint8  `cbor:"1,keyasint"`
	Src       uint16 `cbor:"2,keyasint"`
	Dst       uint16 `cbor:"3,keyasint"`
	TTL       uint8  `cbor:"4,keyasint"`
	Opcode    Opcode `cbor:"5,keyasint"`
	Payload   []byte `cbor:"6,keyasint"`

	// RSSI is set by gateways and simulated bearers; radio bearers measure it.
	RSSI *int8 `cbor:"7,keyasint,omitempty"`
}

// Validate checks that the frame can be dispatched.
func (f *Frame) Validate() error {
	if f.Opcode == 0 {
		return ErrNoOpcode
	}
	return nil
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodeFrame encodes a frame to CBOR bytes.
func EncodeFrame(f *Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	return Marshal(f)
}

// DecodeFrame decodes CBOR bytes into a frame.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	var f Frame
	if err := Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	return &f, nil
}
