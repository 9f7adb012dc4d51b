package cloud

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// FileSystemStore keeps archives as plain files under a root directory.
// Pointing the root at a mounted sync folder (Dropbox, Syncthing, a NAS
// share) gives cloud sync without any provider SDK in this binary.
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates a store rooted at the given path.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

// Upload stores an archive using atomic write (temp file + rename), so a
// reader never observes a half-uploaded archive.
func (s *FileSystemStore) Upload(name string, r io.Reader, size int64) error {
	if filepath.Base(name) != name || name == "." || name == ".." {
		return fmt.Errorf("invalid archive name: %s", name)
	}
	destPath := filepath.Join(s.root, name)

	tmpFile, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Download writes the named archive to w.
func (s *FileSystemStore) Download(name string, w io.Writer) error {
	if filepath.Base(name) != name || name == "." || name == ".." {
		return fmt.Errorf("invalid archive name: %s", name)
	}

	f, err := os.Open(filepath.Join(s.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("archive not found: %s", name)
		}
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	return nil
}

// List enumerates stored archives in name order. Temp files from
// in-flight uploads are excluded.
func (s *FileSystemStore) List() ([]RemoteArchive, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read store root: %w", err)
	}

	var archives []RemoteArchive
	for _, entry := range entries {
		if entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		archives = append(archives, RemoteArchive{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].Name < archives[j].Name })
	return archives, nil
}

// Compile-time check that FileSystemStore implements the Store interface
var _ Store = (*FileSystemStore)(nil)
