package engine

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// FileRecord describes a single regular file within a snapshot.
type FileRecord struct {
	Path    string      // slash-normalized path relative to the root
	Size    int64       // content size in bytes
	Digest  Digest      // content digest
	ModTime time.Time   // best-effort, informational only
	Mode    fs.FileMode // permission bits
}

// NewFileRecord validates the relative path and builds a FileRecord.
// Paths containing "..", absolute segments, or backslashes are rejected.
func NewFileRecord(relPath string, size int64, digest Digest, modTime time.Time, mode fs.FileMode) (FileRecord, error) {
	clean, err := NormalizeRelPath(relPath)
	if err != nil {
		return FileRecord{}, err
	}
	return FileRecord{
		Path:    clean,
		Size:    size,
		Digest:  digest,
		ModTime: modTime,
		Mode:    mode.Perm(),
	}, nil
}

// NormalizeRelPath validates and cleans a slash-separated relative path.
func NormalizeRelPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty relative path")
	}
	if strings.Contains(p, `\`) {
		return "", fmt.Errorf("relative path %q contains a backslash", p)
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("relative path %q is absolute", p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("relative path %q escapes the root", p)
	}
	return clean, nil
}

// Warning records a per-file problem that was recovered during a directory
// walk rather than aborting it.
type Warning struct {
	Path   string
	Reason string
}

// Snapshot is an immutable, ordered mapping of relative path to FileRecord.
// Record order is the lexicographic path order, which makes archive
// contents reproducible across runs given unchanged inputs.
type Snapshot struct {
	records   []FileRecord
	index     map[string]int
	createdAt time.Time
	warnings  []Warning
}

// NewSnapshot builds a Snapshot from the given records. Records are sorted
// lexicographically by path; duplicate or invalid paths are rejected.
func NewSnapshot(createdAt time.Time, records []FileRecord, warnings []Warning) (*Snapshot, error) {
	sorted := make([]FileRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	index := make(map[string]int, len(sorted))
	for i, rec := range sorted {
		if _, err := NormalizeRelPath(rec.Path); err != nil {
			return nil, fmt.Errorf("invalid record path: %w", err)
		}
		if _, dup := index[rec.Path]; dup {
			return nil, fmt.Errorf("duplicate record path %q", rec.Path)
		}
		index[rec.Path] = i
	}

	return &Snapshot{
		records:   sorted,
		index:     index,
		createdAt: createdAt,
		warnings:  warnings,
	}, nil
}

// Len returns the number of file records.
func (s *Snapshot) Len() int { return len(s.records) }

// Records returns the file records in lexicographic path order.
// The returned slice must not be modified.
func (s *Snapshot) Records() []FileRecord { return s.records }

// Get returns the record for the given relative path.
func (s *Snapshot) Get(relPath string) (FileRecord, bool) {
	i, ok := s.index[relPath]
	if !ok {
		return FileRecord{}, false
	}
	return s.records[i], true
}

// Paths returns all relative paths in lexicographic order.
func (s *Snapshot) Paths() []string {
	paths := make([]string, len(s.records))
	for i, rec := range s.records {
		paths[i] = rec.Path
	}
	return paths
}

// CreatedAt returns the snapshot creation time.
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// Warnings returns the non-fatal problems collected while building the
// snapshot (unreadable files, skipped symlinks).
func (s *Snapshot) Warnings() []Warning { return s.warnings }

// TotalSize returns the sum of all record sizes.
func (s *Snapshot) TotalSize() int64 {
	var total int64
	for _, rec := range s.records {
		total += rec.Size
	}
	return total
}
