package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
)

// RecordStore keeps canonical records in-process for dry runs and tests.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]jobs.CanonicalRecord
	order   []string
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]jobs.CanonicalRecord)}
}

// Store saves record. A second record with the same ID is ignored, matching
// the SQL stores.
func (s *RecordStore) Store(_ context.Context, record jobs.CanonicalRecord) error {
	if record.ID == "" {
		return &jobs.StorageError{Err: errMissingID}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return nil
	}
	s.records[record.ID] = record
	s.order = append(s.order, record.ID)
	return nil
}

// Get fetches a record by ID.
func (s *RecordStore) Get(id string) (jobs.CanonicalRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Records returns stored records in insertion order.
func (s *RecordStore) Records() []jobs.CanonicalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]jobs.CanonicalRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// Len returns the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// CountByRole tallies stored records per role label.
func (s *RecordStore) CountByRole() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, rec := range s.records {
		out[rec.Role]++
	}
	return out
}

// IDs returns the stored IDs in sorted order.
func (s *RecordStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]string(nil), s.order...)
	sort.Strings(out)
	return out
}
