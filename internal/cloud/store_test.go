package cloud

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"slicerbak/internal/config"
)

// storeFactories lets the suite run against every Store implementation.
var storeFactories = map[string]func(t *testing.T) Store{
	"memory": func(t *testing.T) Store {
		return NewMemoryStore()
	},
	"filesystem": func(t *testing.T) Store {
		s, err := NewFileSystemStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		return s
	},
}

func TestStore_UploadDownloadList(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			data := "archive bytes"
			if err := s.Upload("b.zip", strings.NewReader(data), int64(len(data))); err != nil {
				t.Fatalf("Upload() error = %v", err)
			}
			if err := s.Upload("a.zip", strings.NewReader(data), int64(len(data))); err != nil {
				t.Fatalf("Upload() error = %v", err)
			}

			var buf bytes.Buffer
			if err := s.Download("b.zip", &buf); err != nil {
				t.Fatalf("Download() error = %v", err)
			}
			if buf.String() != data {
				t.Errorf("Download() = %q, want %q", buf.String(), data)
			}

			list, err := s.List()
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != 2 {
				t.Fatalf("List() = %d entries, want 2", len(list))
			}
			if list[0].Name != "a.zip" || list[1].Name != "b.zip" {
				t.Errorf("List() order = [%s %s], want [a.zip b.zip]", list[0].Name, list[1].Name)
			}
			if list[0].Size != int64(len(data)) {
				t.Errorf("Size = %d, want %d", list[0].Size, len(data))
			}
		})
	}
}

func TestStore_UploadReplacesExisting(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			if err := s.Upload("a.zip", strings.NewReader("old"), 3); err != nil {
				t.Fatalf("Upload() error = %v", err)
			}
			if err := s.Upload("a.zip", strings.NewReader("newer"), 5); err != nil {
				t.Fatalf("Upload() replace error = %v", err)
			}

			var buf bytes.Buffer
			if err := s.Download("a.zip", &buf); err != nil {
				t.Fatalf("Download() error = %v", err)
			}
			if buf.String() != "newer" {
				t.Errorf("Download() = %q, want %q", buf.String(), "newer")
			}
		})
	}
}

func TestStore_SizeMismatchRejected(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			if err := s.Upload("a.zip", strings.NewReader("abc"), 99); err == nil {
				t.Error("Upload() with wrong size succeeded, want error")
			}
		})
	}
}

func TestStore_DownloadMissing(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			var buf bytes.Buffer
			if err := s.Download("absent.zip", &buf); err == nil {
				t.Error("Download() of missing archive succeeded, want error")
			}
		})
	}
}

func TestFileSystemStore_FailedUploadLeavesNoFile(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileSystemStore(root)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	// Size mismatch aborts after the bytes are staged.
	if err := s.Upload("a.zip", strings.NewReader("abc"), 99); err == nil {
		t.Fatal("Upload() with wrong size succeeded")
	}

	if _, err := os.Stat(filepath.Join(root, "a.zip")); !os.IsNotExist(err) {
		t.Error("failed upload left the destination file behind")
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("failed upload left %d stray files", len(entries))
	}
}

func TestFileSystemStore_RejectsPathyNames(t *testing.T) {
	s, err := NewFileSystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	for _, name := range []string{"../escape.zip", "sub/dir.zip", ".."} {
		if err := s.Upload(name, strings.NewReader("x"), 1); err == nil {
			t.Errorf("Upload(%q) succeeded, want error", name)
		}
		if err := s.Download(name, &bytes.Buffer{}); err == nil {
			t.Errorf("Download(%q) succeeded, want error", name)
		}
	}
}

func TestNewStoreFromConfig(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		s, err := NewStoreFromConfig(config.CloudConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error = %v", err)
		}
		if _, ok := s.(*MemoryStore); !ok {
			t.Errorf("got %T, want *MemoryStore", s)
		}
	})

	t.Run("filesystem", func(t *testing.T) {
		s, err := NewStoreFromConfig(config.CloudConfig{Type: "filesystem", Root: t.TempDir()})
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error = %v", err)
		}
		if _, ok := s.(*FileSystemStore); !ok {
			t.Errorf("got %T, want *FileSystemStore", s)
		}
	})

	t.Run("filesystem without root", func(t *testing.T) {
		if _, err := NewStoreFromConfig(config.CloudConfig{Type: "filesystem"}); err == nil {
			t.Error("NewStoreFromConfig() without root succeeded, want error")
		}
	})

	t.Run("unconfigured", func(t *testing.T) {
		if _, err := NewStoreFromConfig(config.CloudConfig{}); err == nil {
			t.Error("NewStoreFromConfig() with empty type succeeded, want error")
		}
	})
}
