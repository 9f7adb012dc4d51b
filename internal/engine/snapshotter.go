package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Builder walks a configuration root into a Snapshot.
//
// Only regular files become entries; empty directories are not represented.
// Symbolic links are followed at most once — a link cycle or a link whose
// target lies outside the root is skipped with a warning. A single
// unreadable file never aborts the walk: it is skipped and recorded as a
// warning on the resulting Snapshot.
type Builder struct {
	Ignore   *IgnoreMatcher // optional exclusion patterns
	Logger   Logger         // optional; defaults to NopLogger
	Progress ProgressFunc   // optional per-file progress callback
	Workers  int            // digest workers; defaults to GOMAXPROCS
}

// pendingFile is a file discovered by the walk, before its digest is known.
type pendingFile struct {
	rel     string
	abs     string
	mode    os.FileMode
	modTime time.Time
}

type digestResult struct {
	digest Digest
	size   int64
	err    error
}

// Build enumerates every regular file under root and returns a Snapshot.
// Digest computation is parallelized per file, but records are merged in
// lexicographic path order so the result is deterministic regardless of
// worker scheduling.
func (b *Builder) Build(root string) (*Snapshot, error) {
	logger := b.Logger
	if logger == nil {
		logger = NewNopLogger()
	}

	if err := CheckRoot(root); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, ErrIO)
	}
	resolvedRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, ErrIO)
	}

	var files []pendingFile
	var warnings []Warning
	visited := map[string]bool{resolvedRoot: true}
	b.walkDir(absRoot, absRoot, resolvedRoot, visited, &files, &warnings, logger)

	results := b.digestAll(files)

	records := make([]FileRecord, 0, len(files))
	total := len(files)
	for i, pf := range files {
		res := results[i]
		if res.err != nil {
			logger.Warn("skipping unreadable file", "path", pf.rel, "error", res.err)
			warnings = append(warnings, Warning{Path: pf.rel, Reason: res.err.Error()})
			b.Progress.Report(i+1, total, pf.rel)
			continue
		}
		rec, err := NewFileRecord(pf.rel, res.size, res.digest, pf.modTime, pf.mode)
		if err != nil {
			warnings = append(warnings, Warning{Path: pf.rel, Reason: err.Error()})
			b.Progress.Report(i+1, total, pf.rel)
			continue
		}
		records = append(records, rec)
		b.Progress.Report(i+1, total, pf.rel)
	}

	snap, err := NewSnapshot(time.Now(), records, warnings)
	if err != nil {
		return nil, fmt.Errorf("assembling snapshot: %w", err)
	}

	logger.Debug("snapshot built", "root", root, "files", snap.Len(), "warnings", len(warnings))
	return snap, nil
}

// walkDir recurses into dir, collecting regular files. Directory entries
// are processed in sorted name order.
func (b *Builder) walkDir(dir, root, resolvedRoot string, visited map[string]bool, files *[]pendingFile, warnings *[]Warning, logger Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		rel := relSlash(root, dir)
		logger.Warn("skipping unreadable directory", "path", rel, "error", err)
		*warnings = append(*warnings, Warning{Path: rel, Reason: err.Error()})
		return
	}

	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		rel := relSlash(root, full)

		if b.Ignore.Match(rel) {
			continue
		}

		isSymlink := entry.Type()&os.ModeSymlink != 0

		var info os.FileInfo
		if isSymlink {
			// Stat follows the link; a dangling link is skipped.
			info, err = os.Stat(full)
			if err != nil {
				*warnings = append(*warnings, Warning{Path: rel, Reason: fmt.Sprintf("broken symlink: %v", err)})
				continue
			}
			target, err := filepath.EvalSymlinks(full)
			if err != nil {
				*warnings = append(*warnings, Warning{Path: rel, Reason: fmt.Sprintf("unresolvable symlink: %v", err)})
				continue
			}
			if !within(resolvedRoot, target) {
				*warnings = append(*warnings, Warning{Path: rel, Reason: "symlink target outside root"})
				continue
			}
		} else {
			info, err = entry.Info()
			if err != nil {
				*warnings = append(*warnings, Warning{Path: rel, Reason: err.Error()})
				continue
			}
		}

		switch {
		case info.IsDir():
			resolved := full
			if r, err := filepath.EvalSymlinks(full); err == nil {
				resolved = r
			}
			if visited[resolved] {
				if isSymlink {
					*warnings = append(*warnings, Warning{Path: rel, Reason: "symlink cycle"})
				}
				continue
			}
			visited[resolved] = true
			b.walkDir(full, root, resolvedRoot, visited, files, warnings, logger)
		case info.Mode().IsRegular():
			*files = append(*files, pendingFile{
				rel:     rel,
				abs:     full,
				mode:    info.Mode(),
				modTime: info.ModTime(),
			})
		default:
			// Sockets, devices, pipes: not backed up.
		}
	}
}

// digestAll computes content digests for all pending files using a bounded
// worker pool. Per-file failures are recorded, never returned: an
// unreadable file must not abort the whole walk.
func (b *Builder) digestAll(files []pendingFile) []digestResult {
	results := make([]digestResult, len(files))

	workers := b.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i := range files {
		g.Go(func() error {
			f, err := os.Open(files[i].abs)
			if err != nil {
				results[i].err = err
				return nil
			}
			defer f.Close()

			digest, size, err := DigestReader(f)
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].digest = digest
			results[i].size = size
			return nil
		})
	}
	g.Wait()

	return results
}

// relSlash returns the slash-normalized path of full relative to root.
func relSlash(root, full string) string {
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return filepath.ToSlash(full)
	}
	return filepath.ToSlash(rel)
}

// within reports whether p lies under root (or is root itself).
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
