package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

type inbox struct {
	mu   sync.Mutex
	msgs []mesh.Message
}

func (i *inbox) receive(msg mesh.Message) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, msg)
	return true
}

func (i *inbox) all() []mesh.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]mesh.Message(nil), i.msgs...)
}

func announce(src, dst uint16) mesh.Message {
	return mesh.Message{
		NetworkID: 1,
		Src:       src,
		Dst:       dst,
		Opcode:    wire.OpAssetAnnounce,
		Payload:   []byte{1, 2, 3},
	}
}

func TestBusDeliversToOthers(t *testing.T) {
	bus := NewBus(func(from, to uint16) int8 { return -int8(from + to) }, nil)
	a, b, c := bus.Attach(1), bus.Attach(2), bus.Attach(3)

	var ia, ib, ic inbox
	require.NoError(t, a.Start(ia.receive))
	require.NoError(t, b.Start(ib.receive))
	require.NoError(t, c.Start(ic.receive))

	require.NoError(t, a.Send(announce(1, mesh.AddrBroadcast)))

	assert.Empty(t, ia.all(), "sender must not hear itself")
	require.Len(t, ib.all(), 1)
	require.Len(t, ic.all(), 1)

	got := ib.all()[0]
	assert.Equal(t, uint16(1), got.Src)
	assert.Equal(t, wire.OpAssetAnnounce, got.Opcode)
	assert.Equal(t, []byte{1, 2, 3}, got.Payload)
	assert.Equal(t, int8(-3), got.RSSI)
	assert.Equal(t, int8(-4), ic.all()[0].RSSI)
}

func TestBusFiltersByDestination(t *testing.T) {
	bus := NewBus(nil, nil)
	a := bus.Attach(1)
	b := bus.Attach(2, 0xC001)
	c := bus.Attach(3)

	var ib, ic inbox
	require.NoError(t, b.Start(ib.receive))
	require.NoError(t, c.Start(ic.receive))

	require.NoError(t, a.Send(announce(1, 0xC001)))
	require.NoError(t, a.Send(announce(1, 3)))

	require.Len(t, ib.all(), 1)
	assert.Equal(t, uint16(0xC001), ib.all()[0].Dst)
	assert.Equal(t, int8(-60), ib.all()[0].RSSI)
	require.Len(t, ic.all(), 1)
	assert.Equal(t, uint16(3), ic.all()[0].Dst)
}

func TestBusUnstartedEndpointDropsFrames(t *testing.T) {
	bus := NewBus(nil, nil)
	a := bus.Attach(1)
	bus.Attach(2)

	assert.NoError(t, a.Send(announce(1, mesh.AddrBroadcast)))
}

func TestBusClose(t *testing.T) {
	bus := NewBus(nil, nil)
	a, b := bus.Attach(1), bus.Attach(2)
	assert.Equal(t, 2, bus.Len())

	var ib inbox
	require.NoError(t, b.Start(ib.receive))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, 1, bus.Len())

	require.NoError(t, a.Send(announce(1, mesh.AddrBroadcast)))
	assert.Empty(t, ib.all())

	assert.ErrorIs(t, b.Send(announce(2, mesh.AddrBroadcast)), ErrClosed)
	assert.ErrorIs(t, b.Start(ib.receive), ErrClosed)
}

func TestBusRejectsInvalidFrame(t *testing.T) {
	bus := NewBus(nil, nil)
	a := bus.Attach(1)

	err := a.Send(mesh.Message{Src: 1, Dst: mesh.AddrBroadcast})
	assert.ErrorIs(t, err, wire.ErrNoOpcode)
}
