package asset

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/csrmesh/csrmesh-go/pkg/log"
	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/metrics"
	"github.com/csrmesh/csrmesh-go/pkg/store"
	"github.com/csrmesh/csrmesh-go/pkg/timer"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// maxChunk is the longest wait, in seconds, armed in one timer.
const maxChunk = uint16(timer.MaxDuration / time.Second)

// Scheduler errors.
var (
	ErrNoTimers = errors.New("asset: timer service required")
	ErrNoSender = errors.New("asset: sender required")
)

// Options configures a Scheduler.
type Options struct {
	// Timers arms the announce timer. Required.
	Timers timer.Service

	// Sender transmits announces and state replies. Required.
	Sender mesh.Sender

	// Store persists the model state at BaseOffset. Nil disables persistence.
	Store      store.Store
	BaseOffset uint16

	// Radio receives the configured transmit power. Nil uses mesh.NopRadio.
	Radio mesh.Radio

	// Logger for operational logs. Nil disables logging.
	Logger *slog.Logger

	// Events receives phase changes. Nil disables the protocol log.
	Events log.Logger

	Metrics *metrics.Metrics
}

// Scheduler is the Asset model handler.
type Scheduler struct {
	opts   Options
	logger *slog.Logger
	events log.Logger
	radio  mesh.Radio

	state State
	phase Phase
	slot  *timer.Slot

	repeatsLeft uint8
	wrapCount   uint16
	remainder   uint16
}

// New creates an idle scheduler with a zero state.
func New(opts Options) (*Scheduler, error) {
	if opts.Timers == nil {
		return nil, ErrNoTimers
	}
	if opts.Sender == nil {
		return nil, ErrNoSender
	}

	s := &Scheduler{
		opts:   opts,
		logger: opts.Logger,
		events: log.OrNoop(opts.Events),
		radio:  opts.Radio,
		slot:   timer.NewSlot(opts.Timers),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.radio == nil {
		s.radio = mesh.NopRadio{}
	}
	return s, nil
}

// Opcodes returns the opcodes handled by HandleMessage.
func (s *Scheduler) Opcodes() []wire.Opcode {
	return []wire.Opcode{wire.OpAssetSetState, wire.OpAssetGetState}
}

// Load restores the state from the store, applies the transmit power and
// starts broadcasting.
func (s *Scheduler) Load() error {
	if s.opts.Store != nil {
		var w [StateWords]uint16
		if err := s.opts.Store.Read(s.opts.BaseOffset, w[:]); err != nil {
			return fmt.Errorf("load asset state: %w", err)
		}
		s.state = DecodeState(w)
	}
	s.applyTxPower()
	s.StartBroadcast()
	return nil
}

// State returns the current state.
func (s *Scheduler) State() State {
	return s.state
}

// Phase returns the current timer phase.
func (s *Scheduler) Phase() Phase {
	return s.phase
}

// SetState overwrites the state, persists it, applies the transmit power
// and restarts broadcasting. Values are accepted as-is.
func (s *Scheduler) SetState(st State) {
	s.state = st
	s.persist()
	s.applyTxPower()
	s.StartBroadcast()
}

// GetState returns the current state tagged with tid.
func (s *Scheduler) GetState(tid uint8) State {
	st := s.state
	st.TransactionID = tid
	return st
}

// StartBroadcast cancels the announce timer and, unless the interval is
// zero, begins a new burst after one announce interval.
func (s *Scheduler) StartBroadcast() {
	s.slot.Cancel()
	s.wrapCount, s.remainder = 0, 0

	if s.state.Interval == 0 {
		s.repeatsLeft = 0
		s.setPhase(PhaseIdle, "interval disabled")
		return
	}

	s.repeatsLeft = s.state.NumAnnounces
	s.setPhase(PhaseRepeating, "broadcast started")
	s.arm(s.state.announceDelay())
}

// Stop cancels the announce timer. The state is kept.
func (s *Scheduler) Stop() {
	s.slot.Cancel()
	s.setPhase(PhaseIdle, "stopped")
}

// HandleMessage processes ASSET_SET_STATE and ASSET_GET_STATE. Both are
// answered with ASSET_STATE to the sender. Other opcodes are ignored.
func (s *Scheduler) HandleMessage(msg mesh.Message) {
	switch msg.Opcode {
	case wire.OpAssetSetState:
		var p wire.AssetState
		if err := p.UnmarshalBinary(msg.Payload); err != nil {
			s.logger.Debug("dropping message", "opcode", msg.Opcode, "src", msg.Src, "error", err)
			return
		}
		s.SetState(StateFromWire(&p))
		s.reply(msg.Src, s.state)

	case wire.OpAssetGetState:
		var p wire.AssetGetState
		if err := p.UnmarshalBinary(msg.Payload); err != nil {
			s.logger.Debug("dropping message", "opcode", msg.Opcode, "src", msg.Src, "error", err)
			return
		}
		s.reply(msg.Src, s.GetState(p.TransactionID))
	}
}

func (s *Scheduler) onTimerFired() {
	switch s.phase {
	case PhaseRepeating:
		s.repeat()
	case PhaseWrapWaiting:
		s.wait()
	}
}

// repeat emits the next announce of the burst, or starts waiting out the
// interval once the burst is done.
func (s *Scheduler) repeat() {
	if s.repeatsLeft > 0 {
		s.announce()
		s.repeatsLeft--
		s.arm(s.state.announceDelay())
		return
	}

	if s.state.Interval == 0 {
		s.setPhase(PhaseIdle, "interval disabled")
		return
	}

	s.wrapCount = s.state.Interval / maxChunk
	s.remainder = s.state.Interval % maxChunk
	s.setPhase(PhaseWrapWaiting, "burst complete")

	if s.wrapCount > 0 {
		s.wrapCount--
		s.arm(timer.MaxDuration)
		return
	}
	s.armRemainder()
}

// wait consumes one wrap chunk or the remainder. When nothing is left the
// next burst begins immediately.
func (s *Scheduler) wait() {
	switch {
	case s.wrapCount > 0:
		s.wrapCount--
		s.arm(timer.MaxDuration)
	case s.remainder > 0:
		s.armRemainder()
	default:
		s.repeatsLeft = s.state.NumAnnounces
		s.setPhase(PhaseRepeating, "interval elapsed")
		s.repeat()
	}
}

func (s *Scheduler) armRemainder() {
	d := time.Duration(s.remainder) * time.Second
	s.remainder = 0
	s.arm(d)
}

func (s *Scheduler) arm(d time.Duration) {
	if err := s.slot.Arm(d, s.onTimerFired); err != nil {
		s.logger.Warn("announce timer not armed", "duration", d, "error", err)
		s.setPhase(PhaseIdle, err.Error())
	}
}

func (s *Scheduler) announce() {
	msg, err := mesh.NewMessage(s.state.ToDestinationID, 0, wire.OpAssetAnnounce, s.state.Announce())
	if err != nil {
		s.logger.Error("encode announce", "error", err)
		return
	}
	if err := s.opts.Sender.Send(msg); err != nil {
		s.logger.Warn("send announce", "dst", msg.Dst, "error", err)
		return
	}
	s.opts.Metrics.Announce()
}

func (s *Scheduler) reply(dst uint16, st State) {
	msg, err := mesh.NewMessage(dst, mesh.DefaultTTL, wire.OpAssetState, st.Wire())
	if err != nil {
		s.logger.Error("encode state", "error", err)
		return
	}
	if err := s.opts.Sender.Send(msg); err != nil {
		s.logger.Warn("send state", "dst", dst, "error", err)
	}
}

func (s *Scheduler) persist() {
	if s.opts.Store == nil {
		return
	}
	w := EncodeState(s.state)
	if err := s.opts.Store.Write(s.opts.BaseOffset, w[:]); err != nil {
		s.logger.Warn("persist asset state", "offset", s.opts.BaseOffset, "error", err)
	}
}

func (s *Scheduler) applyTxPower() {
	if err := s.radio.SetTxPower(s.state.TxPower); err != nil {
		s.logger.Warn("set tx power", "dbm", s.state.TxPower, "error", err)
	}
}

func (s *Scheduler) setPhase(p Phase, reason string) {
	if p == s.phase {
		return
	}
	old := s.phase
	s.phase = p
	s.logger.Debug("asset phase", "from", old, "to", p, "reason", reason)
	s.events.Log(log.StateChange(log.ModelAsset, 0, old.String(), p.String(), reason))
}

// Compile-time interface satisfaction check.
var _ mesh.Handler = (*Scheduler)(nil)
