package transport

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// RSSIFunc returns the receive strength of a frame sent by from and heard
// by to, in dBm.
type RSSIFunc func(from, to uint16) int8

// FixedRSSI returns an RSSIFunc reporting the same strength on every link.
func FixedRSSI(rssi int8) RSSIFunc {
	return func(uint16, uint16) int8 { return rssi }
}

// Bus is an in-process broadcast medium. Every frame is CBOR-encoded once
// and decoded by each receiving endpoint, as it would be on a real bearer.
type Bus struct {
	mu        sync.RWMutex
	endpoints []*Endpoint
	rssi      RSSIFunc
	logger    *slog.Logger
}

// NewBus creates an empty bus. A nil rssi reports -60 dBm on every link.
func NewBus(rssi RSSIFunc, logger *slog.Logger) *Bus {
	if rssi == nil {
		rssi = FixedRSSI(-60)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{rssi: rssi, logger: logger}
}

// Attach adds an endpoint for a node with the given address and groups.
func (b *Bus) Attach(deviceID uint16, groups ...uint16) *Endpoint {
	e := &Endpoint{bus: b, deviceID: deviceID, groups: slices.Clone(groups)}

	b.mu.Lock()
	b.endpoints = append(b.endpoints, e)
	b.mu.Unlock()
	return e
}

// Len returns the number of attached endpoints.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.endpoints)
}

func (b *Bus) detach(e *Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints = slices.DeleteFunc(b.endpoints, func(x *Endpoint) bool { return x == e })
}

func (b *Bus) broadcast(from *Endpoint, data []byte) {
	b.mu.RLock()
	targets := slices.Clone(b.endpoints)
	b.mu.RUnlock()

	for _, e := range targets {
		if e == from {
			continue
		}
		e.receive(from.deviceID, data)
	}
}

// Endpoint is one node's attachment to a Bus.
type Endpoint struct {
	bus      *Bus
	deviceID uint16
	groups   []uint16

	mu     sync.RWMutex
	recv   Receiver
	closed bool
}

// Start begins delivering frames to recv.
func (e *Endpoint) Start(recv Receiver) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.recv = recv
	return nil
}

// Send broadcasts msg to every other endpoint.
func (e *Endpoint) Send(msg mesh.Message) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	data, err := wire.EncodeFrame(msg.ToFrame())
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	e.bus.broadcast(e, data)
	return nil
}

// Close detaches the endpoint from the bus.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.recv = nil
	e.mu.Unlock()

	e.bus.detach(e)
	return nil
}

func (e *Endpoint) receive(from uint16, data []byte) {
	e.mu.RLock()
	recv := e.recv
	e.mu.RUnlock()
	if recv == nil {
		return
	}

	f, err := wire.DecodeFrame(data)
	if err != nil {
		e.bus.logger.Warn("bus: dropping undecodable frame", "to", e.deviceID, "error", err)
		return
	}
	if !mesh.Accepts(f.Dst, e.deviceID, e.groups) {
		return
	}
	recv(mesh.FromFrame(f, e.bus.rssi(from, e.deviceID)))
}

// Compile-time interface satisfaction check.
var _ Bearer = (*Endpoint)(nil)
