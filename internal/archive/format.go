// Package archive serializes snapshots into portable zip containers and
// restores them with integrity validation.
//
// Container layout (stable; see FormatVersion):
//
//	manifest.json          first entry: serialized snapshot + checksum
//	data/<relativePath>    raw payload of every file record
//
// Manifest entries and payload entries must correspond one-to-one, and
// each payload's recomputed digest must match its manifest record.
package archive

import (
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"slicerbak/internal/engine"
)

// FormatVersion is the current manifest schema version. Readers reject
// archives with a greater version rather than attempting a best-effort
// parse.
const FormatVersion = 1

const (
	manifestName = "manifest.json"
	dataPrefix   = "data/"
)

// ManifestEntry is the serialized form of a single file record.
type ManifestEntry struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
	Mode   uint32 `json:"mode"`
}

// Manifest is the distinguished first entry of an archive: the serialized
// snapshot plus the format version and a whole-archive checksum.
type Manifest struct {
	FormatVersion int             `json:"format_version"`
	CreatedAt     time.Time       `json:"created_at"`
	Checksum      string          `json:"checksum"`
	Files         []ManifestEntry `json:"files"`
}

// checksumEntries computes the whole-archive checksum: xxh3-128 over the
// concatenation of per-file digest strings in path order.
func checksumEntries(entries []ManifestEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Digest)
	}
	return fmt.Sprintf("%x", xxh3.Hash128([]byte(sb.String())).Bytes())
}

// newManifest serializes a snapshot into a manifest, sealing it with the
// whole-archive checksum.
func newManifest(snap *engine.Snapshot) *Manifest {
	records := snap.Records()
	entries := make([]ManifestEntry, len(records))
	for i, rec := range records {
		entries[i] = ManifestEntry{
			Path:   rec.Path,
			Size:   rec.Size,
			Digest: string(rec.Digest),
			Mode:   uint32(rec.Mode.Perm()),
		}
	}
	return &Manifest{
		FormatVersion: FormatVersion,
		CreatedAt:     snap.CreatedAt(),
		Checksum:      checksumEntries(entries),
		Files:         entries,
	}
}

// validate checks the format version and the whole-archive checksum.
func (m *Manifest) validate() error {
	if m.FormatVersion > FormatVersion {
		return fmt.Errorf("manifest version %d, this build reads up to %d: %w",
			m.FormatVersion, FormatVersion, engine.ErrUnsupportedFormat)
	}
	if m.FormatVersion < 1 {
		return fmt.Errorf("manifest version %d: %w", m.FormatVersion, engine.ErrCorruptArchive)
	}
	if got := checksumEntries(m.Files); got != m.Checksum {
		return fmt.Errorf("archive checksum mismatch (recorded %s, recomputed %s): %w",
			m.Checksum, got, engine.ErrCorruptArchive)
	}
	return nil
}

// Snapshot materializes the manifest back into an engine Snapshot without
// touching any payload bytes. Invalid record paths mean the manifest was
// tampered with or produced by a broken writer.
func (m *Manifest) Snapshot() (*engine.Snapshot, error) {
	records := make([]engine.FileRecord, 0, len(m.Files))
	for _, e := range m.Files {
		rec, err := engine.NewFileRecord(e.Path, e.Size, engine.Digest(e.Digest), m.CreatedAt, fs.FileMode(e.Mode))
		if err != nil {
			return nil, fmt.Errorf("manifest record: %v: %w", err, engine.ErrCorruptArchive)
		}
		records = append(records, rec)
	}
	snap, err := engine.NewSnapshot(m.CreatedAt, records, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest records: %v: %w", err, engine.ErrCorruptArchive)
	}
	return snap, nil
}
