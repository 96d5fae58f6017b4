package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/csrmesh/csrmesh-go/pkg/asset"
	"github.com/csrmesh/csrmesh-go/pkg/log"
	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/store"
	"github.com/csrmesh/csrmesh-go/pkg/timer"
	"github.com/csrmesh/csrmesh-go/pkg/tracker"
)

// State is the node lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Node is one mesh node running the enabled model handlers.
type Node struct {
	config    Config
	sender    mesh.Sender
	store     store.Store
	logger    *slog.Logger
	plog      log.Logger
	sessionID string

	timers  timer.Service
	runtime *timer.Runtime // set when the node owns wall-clock timers

	dispatcher *mesh.Dispatcher
	asset      *asset.Scheduler
	tracker    *tracker.Tracker

	mu      sync.RWMutex
	state   State
	inbox   chan func()
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New creates a node. Outbound messages go to sender; model state is kept
// in st (an in-memory store if nil).
func New(cfg Config, sender mesh.Sender, st store.Store) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, fmt.Errorf("%w: sender required", ErrInvalidConfig)
	}
	if st == nil {
		st = store.NewMemoryStore(store.DefaultSize)
	}

	n := &Node{
		config:    cfg,
		sender:    sender,
		store:     st,
		logger:    cfg.Logger,
		sessionID: uuid.NewString(),
		state:     StateIdle,
	}
	if n.logger == nil {
		n.logger = slog.New(slog.DiscardHandler)
	}
	n.logger = n.logger.With("device", fmt.Sprintf("%04x", cfg.DeviceID))
	n.plog = &stampedLogger{
		next:      log.OrNoop(cfg.ProtocolLogger),
		sessionID: n.sessionID,
		networkID: cfg.NetworkID,
		deviceID:  cfg.DeviceID,
	}

	n.timers = cfg.Timers
	if n.timers == nil {
		n.runtime = timer.NewRuntime(func(fn func()) { n.post(fn) })
		n.timers = n.runtime
	}

	n.dispatcher = mesh.NewDispatcher(n.logger)
	out := mesh.SenderFunc(n.send)

	if cfg.Asset {
		a, err := asset.New(asset.Options{
			Timers:     n.timers,
			Sender:     out,
			Radio:      cfg.Radio,
			Store:      st,
			BaseOffset: cfg.AssetOffset,
			Logger:     n.logger.With("model", "asset"),
			Events:     n.plog,
			Metrics:    cfg.Metrics,
		})
		if err != nil {
			return nil, err
		}
		n.asset = a
		n.dispatcher.Register(a, a.Opcodes()...)
	}

	if cfg.Tracker {
		t, err := tracker.New(tracker.Options{
			Timers:           n.timers,
			Sender:           out,
			Store:            st,
			BaseOffset:       cfg.TrackerOffset,
			MaxCachedAssets:  cfg.MaxCachedAssets,
			MaxPendingAssets: cfg.MaxPendingAssets,
			RollingAverage:   cfg.RollingAverage,
			Logger:           n.logger.With("model", "tracker"),
			Events:           n.plog,
			Metrics:          cfg.Metrics,
		})
		if err != nil {
			return nil, err
		}
		n.tracker = t
		n.dispatcher.Register(t, t.Opcodes()...)
	}

	return n, nil
}

// DeviceID returns the node's mesh address.
func (n *Node) DeviceID() uint16 {
	return n.config.DeviceID
}

// SessionID identifies this node instance in protocol logs.
func (n *Node) SessionID() string {
	return n.sessionID
}

// Asset returns the Asset model handler, or nil if disabled. Its methods
// must only be called from Do.
func (n *Node) Asset() *asset.Scheduler {
	return n.asset
}

// Tracker returns the Tracker model handler, or nil if disabled. Its
// methods must only be called from Do.
func (n *Node) Tracker() *tracker.Tracker {
	return n.tracker
}

// State returns the lifecycle state.
func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Start runs the event loop and loads the model state from the store.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.state == StateRunning {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	n.inbox = make(chan func(), n.config.InboxSize)
	n.stopped = make(chan struct{})
	n.cancel = cancel
	n.state = StateRunning
	go n.run(loopCtx, n.inbox, n.stopped)
	n.mu.Unlock()

	var loadErr error
	err := n.Do(func() {
		if n.tracker != nil {
			if err := n.tracker.Load(); err != nil {
				loadErr = err
				return
			}
		}
		if n.asset != nil {
			if err := n.asset.Load(); err != nil {
				loadErr = err
			}
		}
	})
	if err == nil {
		err = loadErr
	}
	if err != nil {
		_ = n.Stop()
		return fmt.Errorf("start node: %w", err)
	}

	n.logger.Info("node started", "network", n.config.NetworkID, "asset", n.asset != nil, "tracker", n.tracker != nil, "session", n.sessionID)
	return nil
}

// Stop ends the event loop and cancels all model timers. Cached state is
// lost; persisted state is kept.
func (n *Node) Stop() error {
	n.mu.Lock()
	if n.state != StateRunning {
		n.mu.Unlock()
		return ErrNotStarted
	}
	n.state = StateStopped
	cancel, stopped := n.cancel, n.stopped
	n.mu.Unlock()

	cancel()
	<-stopped

	if n.runtime != nil {
		n.runtime.StopAll()
	}
	if n.asset != nil {
		n.asset.Stop()
	}
	if n.tracker != nil {
		n.tracker.Stop()
	}

	n.logger.Info("node stopped")
	return nil
}

// Deliver queues an inbound message. Messages for other networks, the
// node's own transmissions and messages addressed elsewhere are dropped,
// as are messages arriving while the inbox is full. Safe for concurrent use.
func (n *Node) Deliver(msg mesh.Message) bool {
	if msg.NetworkID != n.config.NetworkID || msg.Src == n.config.DeviceID {
		return false
	}
	if !mesh.Accepts(msg.Dst, n.config.DeviceID, n.config.Groups) {
		return false
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.state != StateRunning {
		return false
	}
	select {
	case n.inbox <- func() { n.receive(msg) }:
		return true
	default:
		n.logger.Warn("inbox full, dropping message", "opcode", msg.Opcode, "src", msg.Src)
		return false
	}
}

// Do runs fn on the event loop and waits for it to finish.
func (n *Node) Do(fn func()) error {
	done := make(chan struct{})
	if !n.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrNotStarted
	}

	n.mu.RLock()
	stopped := n.stopped
	n.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-stopped:
		return ErrNotStarted
	}
}

// DoTimeout is Do with an upper bound on the wait.
func (n *Node) DoTimeout(fn func(), d time.Duration) error {
	errc := make(chan error, 1)
	go func() { errc <- n.Do(fn) }()
	select {
	case err := <-errc:
		return err
	case <-time.After(d):
		return context.DeadlineExceeded
	}
}

// post queues fn onto the loop, blocking while the inbox is full. Returns
// false if the node is not running.
func (n *Node) post(fn func()) bool {
	n.mu.RLock()
	if n.state != StateRunning {
		n.mu.RUnlock()
		return false
	}
	inbox, stopped := n.inbox, n.stopped
	n.mu.RUnlock()

	select {
	case inbox <- fn:
		return true
	case <-stopped:
		return false
	}
}

func (n *Node) run(ctx context.Context, inbox <-chan func(), stopped chan<- struct{}) {
	defer close(stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-inbox:
			fn()
		}
	}
}

func (n *Node) receive(msg mesh.Message) {
	n.config.Metrics.MessageIn(msg.Opcode)
	n.plog.Log(messageEvent(log.DirectionIn, msg))
	n.dispatcher.Dispatch(msg)
}

// send stamps outbound model messages with the node's address.
func (n *Node) send(msg mesh.Message) error {
	msg.NetworkID = n.config.NetworkID
	msg.Src = n.config.DeviceID
	msg.RSSI = 0

	n.plog.Log(messageEvent(log.DirectionOut, msg))
	if err := n.sender.Send(msg); err != nil {
		n.plog.Log(log.Event{
			Timestamp: time.Now(),
			Direction: log.DirectionOut,
			Layer:     log.LayerBearer,
			Category:  log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerBearer,
				Message: err.Error(),
				Context: msg.Opcode.String(),
			},
		})
		return fmt.Errorf("send %s: %w", msg.Opcode, err)
	}
	n.config.Metrics.MessageOut(msg.Opcode)
	return nil
}

func messageEvent(dir log.Direction, msg mesh.Message) log.Event {
	return log.Event{
		Timestamp: time.Now(),
		Direction: dir,
		Layer:     log.LayerModel,
		Category:  log.CategoryMessage,
		Message: &log.MessageEvent{
			Opcode:  msg.Opcode,
			Src:     msg.Src,
			Dst:     msg.Dst,
			TTL:     msg.TTL,
			RSSI:    msg.RSSI,
			Payload: msg.Payload,
		},
	}
}

// stampedLogger fills in the node identity on every protocol event.
type stampedLogger struct {
	next      log.Logger
	sessionID string
	networkID uint8
	deviceID  uint16
}

func (l *stampedLogger) Log(e log.Event) {
	e.SessionID = l.sessionID
	e.NetworkID = l.networkID
	e.DeviceID = l.deviceID
	l.next.Log(e)
}
