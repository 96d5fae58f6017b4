package store

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultSize is the default number of words in a store.
const DefaultSize = 256

// Store errors.
var (
	ErrOutOfRange = errors.New("store access out of range")
)

// Store is a word-addressed persistent store.
type Store interface {
	// Read fills words with len(words) words starting at offset.
	Read(offset uint16, words []uint16) error

	// Write stores words starting at offset.
	Write(offset uint16, words []uint16) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	words []uint16
}

// NewMemoryStore creates a store holding size words, all zero.
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = DefaultSize
	}
	return &MemoryStore{words: make([]uint16, size)}
}

// Read copies words out of the store.
func (m *MemoryStore) Read(offset uint16, words []uint16) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := checkRange(len(m.words), offset, len(words)); err != nil {
		return err
	}
	copy(words, m.words[offset:])
	return nil
}

// Write copies words into the store.
func (m *MemoryStore) Write(offset uint16, words []uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkRange(len(m.words), offset, len(words)); err != nil {
		return err
	}
	copy(m.words[offset:], words)
	return nil
}

// Size returns the number of words in the store.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.words)
}

// Snapshot returns a copy of all words.
func (m *MemoryStore) Snapshot() []uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]uint16, len(m.words))
	copy(out, m.words)
	return out
}

func checkRange(size int, offset uint16, n int) error {
	if int(offset)+n > size {
		return fmt.Errorf("%w: offset %d length %d size %d", ErrOutOfRange, offset, n, size)
	}
	return nil
}

// Compile-time interface satisfaction check.
var _ Store = (*MemoryStore)(nil)
