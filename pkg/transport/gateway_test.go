package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csrmesh/csrmesh-go/pkg/connection"
	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// fakeGateway hands out the node side of a pipe per dial and queues the
// gateway side on conns.
type fakeGateway struct {
	conns chan net.Conn
	fail  atomic.Int32
	dials atomic.Int32
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{conns: make(chan net.Conn, 8)}
}

func (f *fakeGateway) dial(ctx context.Context) (io.ReadWriteCloser, error) {
	f.dials.Add(1)
	if f.fail.Load() > 0 {
		f.fail.Add(-1)
		return nil, errors.New("connection refused")
	}
	node, gw := net.Pipe()
	f.conns <- gw
	return node, nil
}

func (f *fakeGateway) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-f.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no gateway connection")
		return nil
	}
}

type stateLog struct {
	mu     sync.Mutex
	states []connection.State
}

func (l *stateLog) record(_, s connection.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) all() []connection.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]connection.State(nil), l.states...)
}

func fastBackoff() connection.BackoffConfig {
	return connection.BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond}
}

func TestGatewayBearerExchange(t *testing.T) {
	gw := newFakeGateway()
	b := NewGatewayBearer(GatewayConfig{Dial: gw.dial, DefaultRSSI: -65, Backoff: fastBackoff()})
	t.Cleanup(func() { _ = b.Close() })

	var in inbox
	require.NoError(t, b.Start(in.receive))
	assert.Equal(t, connection.StateConnected, b.State())
	conn := gw.accept(t)

	data, err := wire.EncodeFrame(announce(7, mesh.AddrBroadcast).ToFrame())
	require.NoError(t, err)
	require.NoError(t, NewFrameWriter(conn).WriteFrame(data))
	require.Eventually(t, func() bool { return len(in.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int8(-65), in.all()[0].RSSI)

	sent := make(chan []byte, 1)
	go func() {
		frame, err := NewFrameReader(conn).ReadFrame()
		if err == nil {
			sent <- frame
		}
	}()
	require.NoError(t, b.Send(announce(0x0201, mesh.AddrBroadcast)))
	select {
	case frame := <-sent:
		f, err := wire.DecodeFrame(frame)
		require.NoError(t, err)
		assert.Equal(t, uint16(0x0201), f.Src)
	case <-time.After(time.Second):
		t.Fatal("gateway did not receive the frame")
	}
}

func TestGatewayBearerReconnects(t *testing.T) {
	gw := newFakeGateway()
	var states stateLog
	b := NewGatewayBearer(GatewayConfig{Dial: gw.dial, Backoff: fastBackoff(), OnStateChange: states.record})
	t.Cleanup(func() { _ = b.Close() })

	var in inbox
	require.NoError(t, b.Start(in.receive))
	first := gw.accept(t)

	gw.fail.Store(2)
	require.NoError(t, first.Close())

	second := gw.accept(t)
	require.Eventually(t, func() bool { return b.State() == connection.StateConnected }, time.Second, time.Millisecond)
	assert.Equal(t, int32(4), gw.dials.Load(), "one dial, two refused redials, one success")

	// Frames flow over the new stream.
	data, err := wire.EncodeFrame(announce(9, mesh.AddrBroadcast).ToFrame())
	require.NoError(t, err)
	require.NoError(t, NewFrameWriter(second).WriteFrame(data))
	require.Eventually(t, func() bool { return len(in.all()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Close())
	assert.Equal(t, []connection.State{
		connection.StateConnecting,
		connection.StateConnected,
		connection.StateReconnecting,
		connection.StateConnected,
		connection.StateClosed,
	}, states.all())
}

func TestGatewayBearerDownWhileReconnecting(t *testing.T) {
	gw := newFakeGateway()
	b := NewGatewayBearer(GatewayConfig{
		Dial:    gw.dial,
		Backoff: connection.BackoffConfig{Initial: time.Hour, Max: time.Hour},
	})

	var in inbox
	require.NoError(t, b.Start(in.receive))
	require.NoError(t, gw.accept(t).Close())

	require.Eventually(t, func() bool { return b.State() == connection.StateReconnecting }, time.Second, time.Millisecond)
	assert.ErrorIs(t, b.Send(announce(1, mesh.AddrBroadcast)), ErrNotConnected)

	closed := make(chan error, 1)
	go func() { closed <- b.Close() }()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked while waiting to redial")
	}

	assert.Equal(t, connection.StateClosed, b.State())
	assert.ErrorIs(t, b.Send(announce(1, mesh.AddrBroadcast)), ErrClosed)
	assert.ErrorIs(t, b.Start(in.receive), ErrClosed)
	assert.NoError(t, b.Close(), "Close is idempotent")
}

func TestGatewayBearerFirstDialFails(t *testing.T) {
	gw := newFakeGateway()
	gw.fail.Store(1)
	b := NewGatewayBearer(GatewayConfig{Dial: gw.dial, Backoff: fastBackoff()})

	var in inbox
	err := b.Start(in.receive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, connection.StateDisconnected, b.State())
	assert.ErrorIs(t, b.Send(announce(1, mesh.AddrBroadcast)), ErrNotConnected)
	assert.NoError(t, b.Close())
}
