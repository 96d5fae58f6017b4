package asset

import (
	"time"

	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// DefaultAnnounceInterval spaces repeated announces when the state
// carries an announce interval of zero.
const DefaultAnnounceInterval = 100 * time.Millisecond

// Side effect bits an asset may request from trackers and finders.
const (
	SideEffectLight   uint16 = 1 << 0
	SideEffectAudio   uint16 = 1 << 1
	SideEffectVibrate uint16 = 1 << 2
)

// State is the persisted Asset model state.
type State struct {
	// Interval between announce bursts in seconds. 0 disables broadcasting.
	Interval uint16

	// SideEffects is a bitmask of SideEffect* values.
	SideEffects uint16

	// ToDestinationID is the group or device announces are sent to.
	ToDestinationID uint16

	// TxPower in dBm applied to the radio.
	TxPower int8

	// NumAnnounces is the number of announces per burst.
	NumAnnounces uint8

	// AnnounceInterval is the spacing of announces within a burst, in ms.
	AnnounceInterval uint8

	TransactionID uint8
}

// announceDelay returns the spacing between repeats within a burst.
func (s State) announceDelay() time.Duration {
	if s.AnnounceInterval == 0 {
		return DefaultAnnounceInterval
	}
	return time.Duration(s.AnnounceInterval) * time.Millisecond
}

// StateFromWire converts an ASSET_SET_STATE payload.
func StateFromWire(m *wire.AssetState) State {
	return State{
		Interval:         m.Interval,
		SideEffects:      m.SideEffects,
		ToDestinationID:  m.ToDestinationID,
		TxPower:          m.TxPower,
		NumAnnounces:     m.NumAnnounces,
		AnnounceInterval: m.AnnounceInterval,
		TransactionID:    m.TransactionID,
	}
}

// Wire returns the ASSET_STATE payload for s.
func (s State) Wire() *wire.AssetState {
	return &wire.AssetState{
		Interval:         s.Interval,
		SideEffects:      s.SideEffects,
		ToDestinationID:  s.ToDestinationID,
		TxPower:          s.TxPower,
		NumAnnounces:     s.NumAnnounces,
		AnnounceInterval: s.AnnounceInterval,
		TransactionID:    s.TransactionID,
	}
}

// Announce returns the ASSET_ANNOUNCE payload for s.
func (s State) Announce() *wire.AssetAnnounce {
	return &wire.AssetAnnounce{
		Interval:         s.Interval,
		SideEffects:      s.SideEffects,
		ToDestinationID:  s.ToDestinationID,
		TxPower:          s.TxPower,
		NumAnnounces:     s.NumAnnounces,
		AnnounceInterval: s.AnnounceInterval,
	}
}

// StateWords is the number of store words occupied by the Asset model.
const StateWords = 5

// Word offsets relative to the model's base offset.
const (
	wordInterval    = 0
	wordSideEffects = 1
	wordDestination = 2
	wordAnnounce    = 3 // low byte: announce interval (ms), high byte: announce count
	wordTxPower     = 4 // int8 sign-extended to 16 bits
)

// EncodeState lays s out in store words. The transaction id is not persisted.
func EncodeState(s State) [StateWords]uint16 {
	var w [StateWords]uint16
	w[wordInterval] = s.Interval
	w[wordSideEffects] = s.SideEffects
	w[wordDestination] = s.ToDestinationID
	w[wordAnnounce] = uint16(s.NumAnnounces)<<8 | uint16(s.AnnounceInterval)
	w[wordTxPower] = uint16(int16(s.TxPower))
	return w
}

// DecodeState is the inverse of EncodeState.
func DecodeState(w [StateWords]uint16) State {
	return State{
		Interval:         w[wordInterval],
		SideEffects:      w[wordSideEffects],
		ToDestinationID:  w[wordDestination],
		NumAnnounces:     uint8(w[wordAnnounce] >> 8),
		AnnounceInterval: uint8(w[wordAnnounce]),
		TxPower:          int8(int16(w[wordTxPower])),
	}
}

// Phase is the announce timer phase.
type Phase uint8

const (
	// PhaseIdle means no timer is armed.
	PhaseIdle Phase = iota

	// PhaseRepeating means a burst of announces is in progress.
	PhaseRepeating

	// PhaseWrapWaiting means the scheduler is waiting out the interval
	// between bursts, possibly in several wrap chunks.
	PhaseWrapWaiting
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseRepeating:
		return "REPEATING"
	case PhaseWrapWaiting:
		return "WRAP_WAITING"
	default:
		return "UNKNOWN"
	}
}
