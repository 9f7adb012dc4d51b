package cloud

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation, useful for testing.
// Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	archives map[string][]byte
	modTimes map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		archives: make(map[string][]byte),
		modTimes: make(map[string]time.Time),
	}
}

// Upload stores an archive under name, replacing any existing one.
func (m *MemoryStore) Upload(name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.archives[name] = data
	m.modTimes[name] = time.Now()
	return nil
}

// Download writes the named archive to w.
func (m *MemoryStore) Download(name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.archives[name]
	if !ok {
		return fmt.Errorf("archive not found: %s", name)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return nil
}

// List enumerates stored archives in name order.
func (m *MemoryStore) List() ([]RemoteArchive, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	archives := make([]RemoteArchive, 0, len(m.archives))
	for name, data := range m.archives {
		archives = append(archives, RemoteArchive{
			Name:    name,
			Size:    int64(len(data)),
			ModTime: m.modTimes[name],
		})
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].Name < archives[j].Name })
	return archives, nil
}

// Compile-time check that MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)
