package engine

// ProgressFunc is invoked after each processed file with the number of
// items processed so far, the total item estimate, and the path just
// handled. Implementations must be cheap and non-blocking: the engine
// calls them synchronously and does not await anything.
type ProgressFunc func(done, total int, path string)

// Report invokes f if it is non-nil.
func (f ProgressFunc) Report(done, total int, path string) {
	if f != nil {
		f(done, total, path)
	}
}
