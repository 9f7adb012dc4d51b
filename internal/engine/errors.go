package engine

import "errors"

// Error kinds surfaced by the engine. Operations wrap these with context
// using fmt.Errorf("...: %w", ...); callers match them with errors.Is.
//
// Per-file problems during snapshotting never produce errors at all: they
// are downgraded to warnings attached to the Snapshot. Per-file problems
// during restore are handled according to the caller-selected policy.
// Everything else is fatal to the current operation.
var (
	// ErrIO marks an unreadable or unwritable filesystem path.
	ErrIO = errors.New("filesystem I/O error")

	// ErrArchive marks an archive container that cannot be created or opened.
	ErrArchive = errors.New("archive container error")

	// ErrCorruptArchive marks an unparseable manifest, a checksum mismatch,
	// or a payload whose digest does not match its manifest record.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrPartialWrite marks a file that was recorded in the snapshot but
	// disappeared before it could be written into the archive.
	ErrPartialWrite = errors.New("source file vanished during archive write")

	// ErrPathTraversal marks an archive entry whose path would resolve
	// outside the restore target directory.
	ErrPathTraversal = errors.New("entry path escapes target directory")

	// ErrUnsupportedFormat marks a manifest with a format version newer
	// than this build understands.
	ErrUnsupportedFormat = errors.New("unsupported archive format version")

	// ErrRootNotFound marks a resolved configuration root that does not
	// exist or is not a directory.
	ErrRootNotFound = errors.New("configuration root not found")
)
