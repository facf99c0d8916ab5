package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when no bytes exist under a ref.
var ErrNotFound = errors.New("no content for ref")

// ByteStore persists raw file content under opaque refs chosen by the
// caller.
type ByteStore interface {
	Write(ref string, data []byte) error
	Read(ref string) ([]byte, error)
	Exists(ref string) (bool, error)
}

// DerivativeRef names the resized copy of an original at the given
// width. The worker writes under these refs and retrieval probes them,
// so the scheme is the contract between the two.
func DerivativeRef(ref string, width int) string {
	return fmt.Sprintf("%s_%d", ref, width)
}

// FilesystemStore keeps content as flat files under a base directory.
type FilesystemStore struct {
	basePath string
}

func NewFilesystemStore(basePath string) *FilesystemStore {
	return &FilesystemStore{basePath: basePath}
}

func (fs *FilesystemStore) Write(ref string, data []byte) error {
	if err := os.MkdirAll(fs.basePath, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	return os.WriteFile(filepath.Join(fs.basePath, ref), data, 0o644)
}

func (fs *FilesystemStore) Read(ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(fs.basePath, ref))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

func (fs *FilesystemStore) Exists(ref string) (bool, error) {
	_, err := os.Stat(filepath.Join(fs.basePath, ref))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemoryStore holds content in a map. Used by tests and dev mode.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Write(ref string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[ref] = cp
	return nil
}

func (m *MemoryStore) Read(ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[ref]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *MemoryStore) Exists(ref string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.data[ref]
	return ok, nil
}
