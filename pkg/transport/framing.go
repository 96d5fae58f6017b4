package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 2

	// DefaultMaxFrameSize bounds a single frame on a gateway link.
	DefaultMaxFrameSize = 512
)

// Framing errors.
var (
	// ErrFrameTooLarge indicates the frame exceeds the maximum size.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrFrameEmpty indicates an empty frame.
	ErrFrameEmpty = errors.New("frame is empty")

	// ErrFrameTruncated indicates the stream ended inside a frame.
	ErrFrameTruncated = errors.New("frame truncated")
)

// FrameWriter writes length-prefixed frames to an underlying writer.
type FrameWriter struct {
	w       io.Writer
	maxSize int
	mu      sync.Mutex
}

// NewFrameWriter creates a frame writer with the default size limit.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w, maxSize: DefaultMaxFrameSize}
}

// WriteFrame writes one frame. The prefix and data go out in a single
// Write call. Safe for concurrent use.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrFrameEmpty
	}
	if len(data) > fw.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(data), fw.maxSize)
	}

	buf := make([]byte, LengthPrefixSize+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[LengthPrefixSize:], data)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// FrameReader reads length-prefixed frames from an underlying reader.
type FrameReader struct {
	r         io.Reader
	maxSize   int
	lengthBuf [LengthPrefixSize]byte
}

// NewFrameReader creates a frame reader with the default size limit.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, maxSize: DefaultMaxFrameSize}
}

// ReadFrame reads one frame and returns its data. io.EOF is returned
// unchanged when the stream ends between frames.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.lengthBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, err
	}

	length := int(binary.BigEndian.Uint16(fr.lengthBuf[:]))
	if length == 0 {
		return nil, ErrFrameEmpty
	}
	if length > fr.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, fr.maxSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(fr.r, data); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return data, nil
}
