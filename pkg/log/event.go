package log

import (
	"time"

	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies one run of a node (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// NetworkID is the mesh network the node belongs to.
	NetworkID uint8 `cbor:"6,keyasint,omitempty"`

	// DeviceID is the local node's device id.
	DeviceID uint16 `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerBearer is the frame layer (encoded frames on a bearer).
	LayerBearer Layer = 0
	// LayerModel is the model handler layer.
	LayerModel Layer = 1
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerBearer:
		return "BEARER"
	case LayerModel:
		return "MODEL"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a model message.
	CategoryMessage Category = 0
	// CategoryState indicates a model state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent captures a model message.
type MessageEvent struct {
	Opcode wire.Opcode `cbor:"1,keyasint"`
	Src    uint16      `cbor:"2,keyasint"`
	Dst    uint16      `cbor:"3,keyasint"`
	TTL    uint8       `cbor:"4,keyasint"`

	// RSSI is the receive strength (inbound only).
	RSSI int8 `cbor:"5,keyasint,omitempty"`

	// Payload is the raw model payload.
	Payload []byte `cbor:"6,keyasint,omitempty"`
}

// StateChangeEvent captures a model handler state transition.
type StateChangeEvent struct {
	// Model that changed.
	Model Model `cbor:"1,keyasint"`

	// AssetID is the asset the change concerns (tracker only).
	AssetID uint16 `cbor:"2,keyasint,omitempty"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"3,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"4,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"5,keyasint,omitempty"`
}

// Model identifies a model handler.
type Model uint8

const (
	// ModelAsset is the asset broadcast scheduler.
	ModelAsset Model = 0
	// ModelTracker is the tracker proximity cache.
	ModelTracker Model = 1
)

// String returns the model name.
func (m Model) String() string {
	switch m {
	case ModelAsset:
		return "ASSET"
	case ModelTracker:
		return "TRACKER"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}

// StateChange builds a model-layer state change event. The caller fills in
// the session fields.
func StateChange(model Model, assetID uint16, oldState, newState, reason string) Event {
	return Event{
		Timestamp: time.Now(),
		Layer:     LayerModel,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Model:    model,
			AssetID:  assetID,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}
