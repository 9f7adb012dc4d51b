package engine

// Change describes a path present in both snapshots whose content differs,
// carrying the old and new size/digest pairs for reporting.
type Change struct {
	Path      string
	OldSize   int64
	NewSize   int64
	OldDigest Digest
	NewDigest Digest
}

// ComparisonResult classifies every path present in either snapshot into
// exactly one of four sets. The sets partition the union of both
// snapshots' path sets; all slices are in lexicographic path order.
type ComparisonResult struct {
	Added     []string // present in new, absent in old
	Removed   []string // present in old, absent in new
	Modified  []Change // present in both, digest or size differs
	Unchanged []string // present in both, identical digest and size
}

// HasChanges reports whether any path was added, removed, or modified.
func (r *ComparisonResult) HasChanges() bool {
	return len(r.Added)+len(r.Removed)+len(r.Modified) > 0
}

// Compare classifies every path present in either snapshot. It is a pure
// map operation with no I/O: running it twice on the same inputs produces
// an identical result. Equality is decided by content digest and size
// only — modification times and file modes are never consulted, since
// neither survives archiving across machines faithfully.
func Compare(oldSnap, newSnap *Snapshot) *ComparisonResult {
	result := &ComparisonResult{}

	for _, oldRec := range oldSnap.Records() {
		newRec, ok := newSnap.Get(oldRec.Path)
		if !ok {
			result.Removed = append(result.Removed, oldRec.Path)
			continue
		}
		if oldRec.Digest == newRec.Digest && oldRec.Size == newRec.Size {
			result.Unchanged = append(result.Unchanged, oldRec.Path)
			continue
		}
		result.Modified = append(result.Modified, Change{
			Path:      oldRec.Path,
			OldSize:   oldRec.Size,
			NewSize:   newRec.Size,
			OldDigest: oldRec.Digest,
			NewDigest: newRec.Digest,
		})
	}

	for _, newRec := range newSnap.Records() {
		if _, ok := oldSnap.Get(newRec.Path); !ok {
			result.Added = append(result.Added, newRec.Path)
		}
	}

	// Snapshot records iterate in lexicographic order, so every result
	// slice is already sorted.
	return result
}
