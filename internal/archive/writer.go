package archive

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"slicerbak/internal/engine"
)

// Writer serializes a snapshot plus the underlying file contents into a
// single compressed archive.
//
// Writer truncates an existing destination; callers needing an atomic
// replace must write to a temporary path and rename on success. What
// Writer does guarantee is that a failed save leaves no archive at all:
// on any error the partial output is removed before returning.
type Writer struct {
	Logger   engine.Logger       // optional; defaults to NopLogger
	Progress engine.ProgressFunc // optional per-file progress callback
}

// Write streams every file recorded in snap from rootDir into a fresh
// archive at destPath, with the manifest as the first entry. File bytes
// are re-read from disk — the filesystem is the source of truth at write
// time. A file that vanished since snapshotting aborts the operation with
// engine.ErrPartialWrite rather than silently producing an incomplete
// archive.
func (w *Writer) Write(snap *engine.Snapshot, rootDir, destPath string) (err error) {
	logger := w.Logger
	if logger == nil {
		logger = engine.NewNopLogger()
	}

	if _, statErr := os.Stat(rootDir); statErr != nil {
		return fmt.Errorf("source root %s: %v: %w", rootDir, statErr, engine.ErrIO)
	}

	if mkErr := os.MkdirAll(filepath.Dir(destPath), 0755); mkErr != nil {
		return fmt.Errorf("creating archive directory: %v: %w", mkErr, engine.ErrArchive)
	}

	f, createErr := os.Create(destPath)
	if createErr != nil {
		return fmt.Errorf("creating archive %s: %v: %w", destPath, createErr, engine.ErrArchive)
	}

	// A failed save must leave no archive behind.
	success := false
	defer func() {
		f.Close()
		if !success {
			os.Remove(destPath)
		}
	}()

	zw := zip.NewWriter(f)

	if err := writeManifest(zw, snap); err != nil {
		return err
	}

	records := snap.Records()
	total := len(records)
	for i, rec := range records {
		if err := w.writePayload(zw, rootDir, rec); err != nil {
			return err
		}
		w.Progress.Report(i+1, total, rec.Path)
	}

	if closeErr := zw.Close(); closeErr != nil {
		return fmt.Errorf("finalizing archive: %v: %w", closeErr, engine.ErrArchive)
	}
	if syncErr := f.Sync(); syncErr != nil {
		return fmt.Errorf("syncing archive: %v: %w", syncErr, engine.ErrArchive)
	}
	if closeErr := f.Close(); closeErr != nil {
		return fmt.Errorf("closing archive: %v: %w", closeErr, engine.ErrArchive)
	}

	success = true
	logger.Info("archive written", "path", destPath, "files", total)
	return nil
}

// writeManifest writes the manifest as the distinguished first entry.
func writeManifest(zw *zip.Writer, snap *engine.Snapshot) error {
	entry, err := zw.Create(manifestName)
	if err != nil {
		return fmt.Errorf("creating manifest entry: %v: %w", err, engine.ErrArchive)
	}
	if err := json.NewEncoder(entry).Encode(newManifest(snap)); err != nil {
		return fmt.Errorf("encoding manifest: %v: %w", err, engine.ErrArchive)
	}
	return nil
}

// writePayload streams one file from disk into the archive under its
// relative path.
func (w *Writer) writePayload(zw *zip.Writer, rootDir string, rec engine.FileRecord) error {
	src := filepath.Join(rootDir, filepath.FromSlash(rec.Path))

	sf, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", rec.Path, engine.ErrPartialWrite)
		}
		return fmt.Errorf("reading %s: %v: %w", rec.Path, err, engine.ErrIO)
	}
	defer sf.Close()

	hdr := &zip.FileHeader{
		Name:     dataPrefix + rec.Path,
		Method:   zip.Deflate,
		Modified: rec.ModTime,
	}
	hdr.SetMode(rec.Mode)

	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("creating entry for %s: %v: %w", rec.Path, err, engine.ErrArchive)
	}
	if _, err := io.Copy(entry, sf); err != nil {
		return fmt.Errorf("writing %s: %v: %w", rec.Path, err, engine.ErrIO)
	}
	return nil
}
