// Package platform resolves where the slicer application keeps its
// configuration on this machine.
package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"slicerbak/internal/engine"
)

// Resolver locates the slicer configuration root. An explicit Override
// wins; otherwise the root is <user config dir>/<AppName>, which is the
// layout OrcaSlicer and its forks use on every supported OS.
type Resolver struct {
	Override string // explicit root from config or flag; skips discovery
	AppName  string // e.g. "OrcaSlicer"
}

var _ engine.RootResolver = (*Resolver)(nil)

// ResolveConfigRoot returns the absolute path of the configuration root,
// verifying that it exists and is readable.
func (r *Resolver) ResolveConfigRoot() (string, error) {
	root := r.Override
	if root == "" {
		if r.AppName == "" {
			return "", fmt.Errorf("no application name configured: %w", engine.ErrRootNotFound)
		}
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("locating user config directory: %v: %w", err, engine.ErrRootNotFound)
		}
		root = filepath.Join(base, r.AppName)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %v: %w", root, err, engine.ErrIO)
	}
	if err := engine.CheckRoot(abs); err != nil {
		return "", err
	}
	return abs, nil
}
