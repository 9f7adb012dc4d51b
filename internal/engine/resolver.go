package engine

import (
	"fmt"
	"os"
)

// RootResolver supplies the already-resolved configuration root directory.
// The engine treats the result as opaque and performs its own existence
// and readability checks.
type RootResolver interface {
	ResolveConfigRoot() (string, error)
}

// CheckRoot verifies that root exists, is a directory, and is readable.
func CheckRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", root, ErrRootNotFound)
		}
		return fmt.Errorf("stat %s: %w", root, ErrIO)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory: %w", root, ErrRootNotFound)
	}

	f, err := os.Open(root)
	if err != nil {
		return fmt.Errorf("open %s: %w", root, ErrIO)
	}
	f.Close()
	return nil
}
