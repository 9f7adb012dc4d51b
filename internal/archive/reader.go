package archive

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"slicerbak/internal/engine"
)

// Policy selects how restore reacts to corrupt entries.
type Policy int

const (
	// PolicyStrict fails the whole restore on the first corrupt entry,
	// leaving the target directory untouched.
	PolicyStrict Policy = iota
	// PolicyBestEffort extracts all valid entries and reports the rest.
	PolicyBestEffort
)

// ParsePolicy converts a user-supplied policy name.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "strict":
		return PolicyStrict, nil
	case "best-effort", "besteffort":
		return PolicyBestEffort, nil
	default:
		return PolicyStrict, fmt.Errorf("unknown restore policy %q (want strict or best-effort)", s)
	}
}

func (p Policy) String() string {
	if p == PolicyBestEffort {
		return "best-effort"
	}
	return "strict"
}

// RestoreReport enumerates the outcome of a restore operation.
type RestoreReport struct {
	Restored []string // written to the target directory
	Corrupt  []string // digest mismatch or undecodable payload
	Skipped  []string // rejected for path traversal
	OK       bool     // true when nothing was corrupt or skipped
}

// Reader opens archives, validates their manifests, and materializes
// files back onto disk or back into a Snapshot.
type Reader struct {
	Logger   engine.Logger       // optional; defaults to NopLogger
	Progress engine.ProgressFunc // optional per-file progress callback
}

// ReadManifest opens the archive and returns its validated manifest
// without touching any payload bytes. This is the cheap path used for
// comparison.
func (r *Reader) ReadManifest(archivePath string) (*Manifest, error) {
	zr, err := openArchive(archivePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return readManifestFrom(&zr.Reader)
}

// Snapshot materializes the archive's manifest into a Snapshot for
// comparison without writing anything to disk.
func (r *Reader) Snapshot(archivePath string) (*engine.Snapshot, error) {
	m, err := r.ReadManifest(archivePath)
	if err != nil {
		return nil, err
	}
	return m.Snapshot()
}

// stagedEntry is a payload extracted and verified into the staging
// directory, awaiting the commit phase.
type stagedEntry struct {
	rel  string
	tmp  string
	mode fs.FileMode
}

// Restore validates the manifest, then extracts every entry into a
// staging directory inside targetDir, recomputing each payload's digest
// against its manifest record. Only verified entries are moved into
// place, so a pre-existing destination file is overwritten in a single
// rename and no destination file is ever half-written. Entries whose path
// would resolve outside targetDir are rejected and skipped — a security
// invariant, not merely a correctness one.
func (r *Reader) Restore(archivePath, targetDir string, policy Policy) (*RestoreReport, error) {
	logger := r.Logger
	if logger == nil {
		logger = engine.NewNopLogger()
	}

	zr, err := openArchive(archivePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	m, err := readManifestFrom(&zr.Reader)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, fmt.Errorf("creating target %s: %v: %w", targetDir, err, engine.ErrIO)
	}

	payloads := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if f.Name == manifestName {
			continue
		}
		payloads[f.Name] = f
	}

	stage, err := os.MkdirTemp(targetDir, ".stage-")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %v: %w", err, engine.ErrIO)
	}
	defer os.RemoveAll(stage)

	report := &RestoreReport{}
	var ready []stagedEntry

	total := len(m.Files)
	for i, entry := range m.Files {
		r.Progress.Report(i+1, total, entry.Path)

		if !isLocalPath(entry.Path) {
			logger.Warn("rejecting entry", "path", entry.Path, "error", engine.ErrPathTraversal)
			report.Skipped = append(report.Skipped, entry.Path)
			delete(payloads, dataPrefix+entry.Path)
			continue
		}

		zf, ok := payloads[dataPrefix+entry.Path]
		delete(payloads, dataPrefix+entry.Path)
		if !ok {
			if err := corruptEntry(report, policy, logger, entry.Path, "payload missing"); err != nil {
				return report, err
			}
			continue
		}

		tmp, extractErr := extractAndVerify(zf, entry, stage)
		if extractErr != nil {
			if errors.Is(extractErr, engine.ErrIO) {
				return report, extractErr
			}
			if err := corruptEntry(report, policy, logger, entry.Path, extractErr.Error()); err != nil {
				return report, err
			}
			continue
		}

		ready = append(ready, stagedEntry{rel: entry.Path, tmp: tmp, mode: fs.FileMode(entry.Mode)})
	}

	// Payload entries without a manifest record break the 1:1 invariant.
	extras := make([]string, 0, len(payloads))
	for name := range payloads {
		extras = append(extras, strings.TrimPrefix(name, dataPrefix))
	}
	sort.Strings(extras)
	for _, name := range extras {
		if err := corruptEntry(report, policy, logger, name, "entry missing from manifest"); err != nil {
			return report, err
		}
	}

	// Commit phase: move every verified entry into place.
	for _, s := range ready {
		dest := filepath.Join(targetDir, filepath.FromSlash(s.rel))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			// Covers the shape collision where a parent path exists as a file.
			return report, fmt.Errorf("creating parent for %s: %v: %w", s.rel, err, engine.ErrIO)
		}
		if err := os.Rename(s.tmp, dest); err != nil {
			return report, fmt.Errorf("placing %s: %v: %w", s.rel, err, engine.ErrIO)
		}
		if s.mode.Perm() != 0 {
			if err := os.Chmod(dest, s.mode.Perm()); err != nil {
				return report, fmt.Errorf("setting mode on %s: %v: %w", s.rel, err, engine.ErrIO)
			}
		}
		report.Restored = append(report.Restored, s.rel)
	}

	report.OK = len(report.Corrupt) == 0 && len(report.Skipped) == 0
	logger.Info("restore finished", "target", targetDir,
		"restored", len(report.Restored), "corrupt", len(report.Corrupt), "skipped", len(report.Skipped))
	return report, nil
}

// corruptEntry records a corrupt entry and, under the strict policy,
// turns it into a fatal error.
func corruptEntry(report *RestoreReport, policy Policy, logger engine.Logger, path, reason string) error {
	logger.Warn("corrupt entry", "path", path, "reason", reason)
	report.Corrupt = append(report.Corrupt, path)
	if policy == PolicyStrict {
		return fmt.Errorf("%s: %s: %w", path, reason, engine.ErrCorruptArchive)
	}
	return nil
}

// extractAndVerify streams one payload into the staging directory while
// recomputing its digest. Errors wrapping engine.ErrIO are environmental
// and fatal; any other error marks the entry corrupt.
func extractAndVerify(zf *zip.File, entry ManifestEntry, stageDir string) (string, error) {
	rc, err := zf.Open()
	if err != nil {
		return "", fmt.Errorf("opening payload: %v", err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(stageDir, "entry-*")
	if err != nil {
		return "", fmt.Errorf("creating staging file: %v: %w", err, engine.ErrIO)
	}
	tmpPath := tmp.Name()

	digest, size, err := engine.DigestReader(io.TeeReader(rc, tmp))
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("reading payload: %v", err)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing staging file: %v: %w", closeErr, engine.ErrIO)
	}
	if string(digest) != entry.Digest || size != entry.Size {
		os.Remove(tmpPath)
		return "", fmt.Errorf("digest mismatch (want %s/%d bytes, got %s/%d bytes)",
			entry.Digest, entry.Size, digest, size)
	}
	return tmpPath, nil
}

// openArchive opens the zip container, distinguishing a missing/unopenable
// file from a malformed one.
func openArchive(path string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, fmt.Errorf("%s is not a valid archive: %w", path, engine.ErrCorruptArchive)
		}
		return nil, fmt.Errorf("opening archive %s: %v: %w", path, err, engine.ErrArchive)
	}
	return zr, nil
}

// readManifestFrom locates and validates the manifest entry.
func readManifestFrom(zr *zip.Reader) (*Manifest, error) {
	var mf *zip.File
	for _, f := range zr.File {
		if f.Name == manifestName {
			mf = f
			break
		}
	}
	if mf == nil {
		return nil, fmt.Errorf("archive has no manifest: %w", engine.ErrCorruptArchive)
	}

	rc, err := mf.Open()
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %v: %w", err, engine.ErrCorruptArchive)
	}
	defer rc.Close()

	var m Manifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %v: %w", err, engine.ErrCorruptArchive)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// isLocalPath reports whether the manifest path stays inside the target
// directory once joined to it.
func isLocalPath(p string) bool {
	if _, err := engine.NormalizeRelPath(p); err != nil {
		return false
	}
	return filepath.IsLocal(filepath.FromSlash(p))
}
