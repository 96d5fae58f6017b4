package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// StreamBearer exchanges length-prefixed CBOR frames with a mesh gateway
// over a byte stream such as a serial port or TCP connection. The gateway
// fills in the RSSI field of frames it heard over the air.
type StreamBearer struct {
	conn   io.ReadWriteCloser
	writer *FrameWriter
	reader *FrameReader

	// DefaultRSSI is reported for frames that carry no RSSI.
	defaultRSSI int8
	logger      *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

// NewStreamBearer wraps conn. The bearer owns conn and closes it on Close.
func NewStreamBearer(conn io.ReadWriteCloser, defaultRSSI int8, logger *slog.Logger) *StreamBearer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StreamBearer{
		conn:        conn,
		writer:      NewFrameWriter(conn),
		reader:      NewFrameReader(conn),
		defaultRSSI: defaultRSSI,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Start launches the read loop.
func (b *StreamBearer) Start(recv Receiver) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.started {
		return nil
	}
	b.started = true
	go b.readLoop(recv)
	return nil
}

// Send writes msg as one frame.
func (b *StreamBearer) Send(msg mesh.Message) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := wire.EncodeFrame(msg.ToFrame())
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return b.writer.WriteFrame(data)
}

// Close closes the stream and waits for the read loop to exit.
func (b *StreamBearer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	started := b.started
	b.mu.Unlock()

	err := b.conn.Close()
	if started {
		<-b.done
	}
	return err
}

// Done is closed when the read loop exits.
func (b *StreamBearer) Done() <-chan struct{} {
	return b.done
}

func (b *StreamBearer) readLoop(recv Receiver) {
	defer close(b.done)

	for {
		data, err := b.reader.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) || errors.Is(err, ErrFrameEmpty) {
				// The length prefix is untrustworthy; the stream cannot be
				// resynchronised.
				b.logger.Error("stream: framing error", "error", err)
				return
			}
			if !b.isClosed() && !errors.Is(err, io.EOF) {
				b.logger.Warn("stream: read failed", "error", err)
			}
			return
		}

		f, err := wire.DecodeFrame(data)
		if err != nil {
			b.logger.Warn("stream: dropping undecodable frame", "error", err)
			continue
		}
		recv(mesh.FromFrame(f, b.defaultRSSI))
	}
}

func (b *StreamBearer) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

var _ Bearer = (*StreamBearer)(nil)
