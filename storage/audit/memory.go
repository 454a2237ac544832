package audit

import (
	"sync"

	"trustgate/core/audit"
)

// MemoryStore keeps the entire audit corpus as an ordered in-memory slice.
// It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append persists record as-is; MemoryStore never mutates a stored record.
func (s *MemoryStore) Append(record audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Query returns matches in ascending timestamp order (insertion order,
// which the engine guarantees is already ascending).
func (s *MemoryStore) Query(filter Filter) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return applyFilter(s.records, filter), nil
}

// All returns the entire corpus in ascending timestamp order.
func (s *MemoryStore) All() ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Count returns the number of records currently stored.
func (s *MemoryStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}
