// Package dedup tracks record identities seen during a run.
package dedup

import (
	"sync"
	"sync/atomic"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
)

// Set admits each identity at most once. It is safe for concurrent use and
// is the only place a run remembers which records it has already emitted.
type Set struct {
	seen sync.Map
	size atomic.Int64
}

// New returns an empty Set.
func New() *Set {
	return &Set{}
}

// Accept reports whether record is the first with its ID. Check and insert
// happen atomically, so concurrent callers with the same ID see exactly one true.
func (s *Set) Accept(record jobs.CanonicalRecord) bool {
	return s.AcceptID(record.ID)
}

// AcceptID is Accept keyed by a bare identity.
func (s *Set) AcceptID(id string) bool {
	if _, loaded := s.seen.LoadOrStore(id, struct{}{}); loaded {
		return false
	}
	s.size.Add(1)
	return true
}

// Len returns the number of accepted identities.
func (s *Set) Len() int {
	return int(s.size.Load())
}
