package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/csrmesh/csrmesh-go/pkg/connection"
	"github.com/csrmesh/csrmesh-go/pkg/mesh"
)

// ErrNotConnected is returned by GatewayBearer.Send while the link is down.
var ErrNotConnected = errors.New("gateway not connected")

// DialFunc opens a byte stream to a gateway.
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// GatewayConfig configures a GatewayBearer.
type GatewayConfig struct {
	Dial DialFunc

	// DefaultRSSI is reported for frames that carry no RSSI.
	DefaultRSSI int8

	Backoff connection.BackoffConfig
	Logger  *slog.Logger

	// OnStateChange is called after every link state change. Optional.
	OnStateChange func(from, to connection.State)
}

// GatewayBearer is a StreamBearer that redials its gateway with backoff
// when the stream ends. Frames sent while the link is down are dropped.
type GatewayBearer struct {
	cfg     GatewayConfig
	logger  *slog.Logger
	backoff *connection.Backoff

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.RWMutex
	state       connection.State
	stream      *StreamBearer
	recv        Receiver
	supervising bool
}

// NewGatewayBearer creates a bearer. Nothing is dialled until Start.
func NewGatewayBearer(cfg GatewayConfig) *GatewayBearer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GatewayBearer{
		cfg:     cfg,
		logger:  logger,
		backoff: connection.NewBackoff(cfg.Backoff),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start dials the gateway once and then keeps the link up in the
// background. A failed first dial is returned.
func (g *GatewayBearer) Start(recv Receiver) error {
	g.mu.Lock()
	switch g.state {
	case connection.StateClosed:
		g.mu.Unlock()
		return ErrClosed
	case connection.StateDisconnected:
	default:
		g.mu.Unlock()
		return nil
	}
	g.recv = recv
	g.state = connection.StateConnecting
	g.mu.Unlock()
	g.notify(connection.StateDisconnected, connection.StateConnecting)

	if err := g.connect(); err != nil {
		g.setState(connection.StateDisconnected)
		return err
	}

	g.mu.Lock()
	if g.state == connection.StateClosed {
		g.mu.Unlock()
		return ErrClosed
	}
	g.supervising = true
	g.mu.Unlock()
	go g.supervise()
	return nil
}

// State returns the link state.
func (g *GatewayBearer) State() connection.State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Send writes msg to the current stream.
func (g *GatewayBearer) Send(msg mesh.Message) error {
	g.mu.RLock()
	state, stream := g.state, g.stream
	g.mu.RUnlock()

	switch state {
	case connection.StateClosed:
		return ErrClosed
	case connection.StateConnected:
		return stream.Send(msg)
	default:
		return ErrNotConnected
	}
}

// Close stops redialling and closes the current stream.
func (g *GatewayBearer) Close() error {
	g.mu.Lock()
	old := g.state
	if old == connection.StateClosed {
		g.mu.Unlock()
		return nil
	}
	g.state = connection.StateClosed
	supervising, stream := g.supervising, g.stream
	g.mu.Unlock()
	g.notify(old, connection.StateClosed)

	g.cancel()
	var err error
	if stream != nil {
		err = stream.Close()
	}
	if supervising {
		<-g.done
	}
	return err
}

func (g *GatewayBearer) connect() error {
	conn, err := g.cfg.Dial(g.ctx)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	stream := NewStreamBearer(conn, g.cfg.DefaultRSSI, g.logger)

	g.mu.Lock()
	if g.state == connection.StateClosed {
		g.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	g.stream = stream
	recv := g.recv
	g.mu.Unlock()

	if err := stream.Start(recv); err != nil {
		return err
	}
	g.backoff.Reset()
	g.setState(connection.StateConnected)
	return nil
}

// supervise waits for the stream to end and redials until Close.
func (g *GatewayBearer) supervise() {
	defer close(g.done)

	for {
		g.mu.RLock()
		stream := g.stream
		g.mu.RUnlock()

		select {
		case <-g.ctx.Done():
			return
		case <-stream.Done():
		}
		if g.ctx.Err() != nil {
			return
		}
		_ = stream.Close()
		g.setState(connection.StateReconnecting)
		g.logger.Warn("gateway link lost, reconnecting")

		for {
			if err := g.backoff.Wait(g.ctx); err != nil {
				return
			}
			err := g.connect()
			if err == nil {
				g.logger.Info("gateway link restored")
				break
			}
			if errors.Is(err, ErrClosed) {
				return
			}
			g.logger.Debug("gateway redial failed", "attempt", g.backoff.Attempts(), "error", err)
		}
	}
}

// setState moves to s unless the bearer is closed.
func (g *GatewayBearer) setState(s connection.State) {
	g.mu.Lock()
	old := g.state
	if old == s || old == connection.StateClosed {
		g.mu.Unlock()
		return
	}
	g.state = s
	g.mu.Unlock()
	g.notify(old, s)
}

func (g *GatewayBearer) notify(old, s connection.State) {
	g.logger.Debug("gateway link state", "from", old, "to", s)
	if g.cfg.OnStateChange != nil {
		g.cfg.OnStateChange(old, s)
	}
}

var _ Bearer = (*GatewayBearer)(nil)
