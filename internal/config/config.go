package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for slicerbak.
type Config struct {
	// ConfigRoot overrides the slicer configuration directory. Empty means
	// resolve it from the platform's user config directory and AppName.
	ConfigRoot string `toml:"config_root"`
	// AppName is the slicer application whose configuration is backed up.
	AppName string `toml:"app_name"`
	// ArchiveDir is where save writes archives by default.
	ArchiveDir string `toml:"archive_dir"`
	LogDir     string `toml:"log_dir"`
	// Ignore lists exclusion patterns applied while snapshotting.
	Ignore  []string      `toml:"ignore"`
	Catalog CatalogConfig `toml:"catalog"`
	Cloud   CloudConfig   `toml:"cloud"`
}

// CatalogConfig configures the operation history database.
// Tagged union: Type determines which other fields are relevant.
type CatalogConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// CloudConfig configures the remote archive store used by push/pull.
// Tagged union: Type determines which other fields are relevant.
type CloudConfig struct {
	Type string `toml:"type"`           // "filesystem" or "memory"
	Root string `toml:"root,omitempty"` // only used for type=filesystem
}

// DefaultIgnore excludes volatile slicer state that has no place in a
// backup: dotfiles, caches, scratch space, and logs.
func DefaultIgnore() []string {
	return []string{".*", "cache", "temp", "logs"}
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		AppName:    "OrcaSlicer",
		ArchiveDir: filepath.Join(baseDir, "archives"),
		LogDir:     filepath.Join(baseDir, "log"),
		Ignore:     DefaultIgnore(),
		Catalog: CatalogConfig{
			Type:    "sqlite",
			DataDir: baseDir,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the
// provided Config. Refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
