// Package dedup suppresses repeated candidate records within one crawl
// run. State lives for the run only; cross-run deduplication is the
// upserter's job via the (source, external_id) uniqueness key.
package dedup

// SeenSet tracks source-local identifiers observed during one run. It is
// used from a single goroutine per run and needs no locking.
type SeenSet struct {
	seen    map[string]struct{}
	skipped int
}

// NewSeenSet constructs an empty set for one (source, run) scope.
func NewSeenSet() *SeenSet {
	return &SeenSet{seen: make(map[string]struct{})}
}

// Seen records externalID and reports whether it was already observed in
// this run. The first occurrence returns false; repeats return true and
// are counted as skipped duplicates.
func (s *SeenSet) Seen(externalID string) bool {
	if _, dup := s.seen[externalID]; dup {
		s.skipped++
		return true
	}
	s.seen[externalID] = struct{}{}
	return false
}

// Skipped returns how many duplicates were suppressed so far.
func (s *SeenSet) Skipped() int {
	return s.skipped
}
