// Package cloud abstracts the remote archive store used by push and pull.
// Network-backed providers plug in behind the Store interface; this module
// ships a filesystem store (any mounted sync folder works as a remote) and
// an in-memory store for tests.
package cloud

import (
	"fmt"
	"io"
	"time"

	"slicerbak/internal/config"
)

// RemoteArchive describes one archive held by a store.
type RemoteArchive struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Store is the remote side of push/pull. Implementations must be safe for
// concurrent use.
type Store interface {
	// Upload stores an archive under name. Uploading an existing name
	// replaces it atomically.
	Upload(name string, r io.Reader, size int64) error
	// Download writes the named archive to w.
	Download(name string, w io.Writer) error
	// List enumerates stored archives in name order.
	List() ([]RemoteArchive, error)
}

// NewStoreFromConfig creates a Store from the cloud config section.
func NewStoreFromConfig(cfg config.CloudConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem cloud store requires root to be set")
		}
		return NewFileSystemStore(cfg.Root)
	case "":
		return nil, fmt.Errorf("no cloud store configured")
	default:
		return nil, fmt.Errorf("unknown cloud store type: %s", cfg.Type)
	}
}
