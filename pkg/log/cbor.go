package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// A capture is a plain sequence of CBOR maps, one per Event, keyed by the
// small integers in the keyasint tags. There is no header or framing; a
// reader decodes records until EOF.
//
// Records are written with canonical key order and definite lengths, and
// timestamps are normalised to UTC, so one event always encodes to the same
// bytes. Timestamps are tagged RFC 3339 strings with nanoseconds: pending
// ticks of the tracker are only a few milliseconds apart.
var (
	eventEnc cbor.EncMode
	eventDec cbor.DecMode
)

func init() {
	var err error

	eventEnc, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
		TimeTag:     cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("mesh event encoder: %v", err))
	}

	// Only EncodeEvent writes captures. Anything it would not produce, such
	// as repeated keys or streamed containers, marks a damaged file.
	eventDec, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxNestedLevels:  8,
		MaxMapPairs:      32,
		MaxArrayElements: 16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("mesh event decoder: %v", err))
	}
}

// canonical returns event as it is stored.
func canonical(event Event) Event {
	event.Timestamp = event.Timestamp.UTC()
	if m := event.Message; m != nil && len(m.Payload) == 0 && m.Payload != nil {
		c := *m
		c.Payload = nil
		event.Message = &c
	}
	return event
}

// EncodeEvent encodes one capture record.
func EncodeEvent(event Event) ([]byte, error) {
	return eventEnc.Marshal(canonical(event))
}

// DecodeEvent decodes one capture record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := eventDec.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// EventEncoder appends records to a capture stream.
type EventEncoder struct {
	enc *cbor.Encoder
}

// NewEncoder returns an encoder writing records to w.
func NewEncoder(w io.Writer) *EventEncoder {
	return &EventEncoder{enc: eventEnc.NewEncoder(w)}
}

// Encode writes one record.
func (e *EventEncoder) Encode(event Event) error {
	return e.enc.Encode(canonical(event))
}

// EventDecoder reads records from a capture stream.
type EventDecoder struct {
	dec *cbor.Decoder
}

// NewDecoder returns a decoder reading records from r.
func NewDecoder(r io.Reader) *EventDecoder {
	return &EventDecoder{dec: eventDec.NewDecoder(r)}
}

// Decode reads the next record. It returns io.EOF at a clean end of stream.
func (d *EventDecoder) Decode() (Event, error) {
	var event Event
	if err := d.dec.Decode(&event); err != nil {
		return Event{}, err
	}
	return event, nil
}
