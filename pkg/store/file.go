package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileVersion is the current version of the store file format.
const FileVersion = 1

// fileImage is the JSON representation of a FileStore.
type fileImage struct {
	// Version is the file format version.
	Version int `json:"version"`

	// SavedAt is when the image was last written.
	SavedAt time.Time `json:"saved_at"`

	// Words is the full word array.
	Words []uint16 `json:"words"`
}

// FileStore is a Store backed by a JSON file. Every Write rewrites the
// whole file, which matches the per-call atomicity of the NVM it models.
type FileStore struct {
	mu   sync.Mutex
	path string
	mem  *MemoryStore
}

// OpenFileStore opens or creates a file store with size words. An
// existing file smaller than size is extended with zero words.
func OpenFileStore(path string, size int) (*FileStore, error) {
	s := &FileStore{path: path, mem: NewMemoryStore(size)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}

	var img fileImage
	if err := json.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("decode store file: %w", err)
	}
	if len(img.Words) > s.mem.Size() {
		img.Words = img.Words[:s.mem.Size()]
	}
	if err := s.mem.Write(0, img.Words); err != nil {
		return nil, err
	}
	return s, nil
}

// Read copies words out of the store.
func (s *FileStore) Read(offset uint16, words []uint16) error {
	return s.mem.Read(offset, words)
}

// Write updates the store and persists it to disk.
func (s *FileStore) Write(offset uint16, words []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mem.Write(offset, words); err != nil {
		return err
	}
	return s.flush()
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(fileImage{
		Version: FileVersion,
		SavedAt: time.Now(),
		Words:   s.mem.Snapshot(),
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Compile-time interface satisfaction check.
var _ Store = (*FileStore)(nil)
