package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - SLICERBAK_CONFIG_PATH: config file location (default: ~/.config/slicerbak.toml)
//   - SLICERBAK_HOME: base directory for slicerbak data (default: ~/.local/share/slicerbak)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"archive_dir": filepath.Join(baseDir, "archives"),
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking SLICERBAK_CONFIG_PATH
// first, then falling back to the default ~/.config/slicerbak.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("SLICERBAK_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "slicerbak.toml"), nil
}

// getBaseDir returns the base directory for slicerbak data, checking
// SLICERBAK_HOME first, then falling back to the XDG default
// ~/.local/share/slicerbak.
func getBaseDir() (string, error) {
	if path := os.Getenv("SLICERBAK_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "slicerbak"), nil
}
