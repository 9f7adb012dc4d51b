package main

import (
	"os"
	"path/filepath"
	"testing"

	"slicerbak/internal/encryption"
)

func TestPassphraseFor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	plain := filepath.Join(dir, "plain.zip")
	if err := os.WriteFile(plain, []byte("PK\x03\x04 not really a zip"), 0644); err != nil {
		t.Fatal(err)
	}

	sealed := filepath.Join(dir, "sealed.zip")
	if err := encryption.EncryptFile(plain, sealed, "hunter2"); err != nil {
		t.Fatalf("encrypting fixture: %v", err)
	}

	// The flag value always wins, so no terminal prompt is reached even for
	// an encrypted archive.
	t.Run("flag value passes through", func(t *testing.T) {
		t.Parallel()
		for _, path := range []string{plain, sealed} {
			got, err := passphraseFor(path, "hunter2")
			if err != nil {
				t.Fatalf("passphraseFor(%s) error = %v", path, err)
			}
			if got != "hunter2" {
				t.Errorf("passphraseFor(%s) = %q, want hunter2", path, got)
			}
		}
	})

	t.Run("unencrypted archive needs no passphrase", func(t *testing.T) {
		t.Parallel()
		got, err := passphraseFor(plain, "")
		if err != nil {
			t.Fatalf("passphraseFor() error = %v", err)
		}
		if got != "" {
			t.Errorf("passphraseFor() = %q, want empty", got)
		}
	})

	t.Run("missing archive needs no passphrase", func(t *testing.T) {
		t.Parallel()
		got, err := passphraseFor(filepath.Join(dir, "absent.zip"), "")
		if err != nil {
			t.Fatalf("passphraseFor() error = %v", err)
		}
		if got != "" {
			t.Errorf("passphraseFor() = %q, want empty", got)
		}
	})
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.n); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
