package memory

import (
	"context"
	"fmt"
	"sync"

	"registro/internal/core"
)

// Store is an in-memory MasterWriter for tests and local runs without a
// spreadsheet. The last export per day wins, matching the replace semantics
// of the Sheets backend.
type Store struct {
	mu      sync.Mutex
	byDay   map[string]core.LedgerRecord
	exports int
}

func New() *Store {
	return &Store{byDay: make(map[string]core.LedgerRecord)}
}

// ExportMaster stores the record under its day and returns a synthetic ref.
func (s *Store) ExportMaster(_ context.Context, day string, rec core.LedgerRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDay[day] = rec
	s.exports++
	return fmt.Sprintf("mem:%s:%d", day, s.exports), nil
}

// Exported returns the last record exported for the day, if any.
func (s *Store) Exported(day string) (core.LedgerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byDay[day]
	return rec, ok
}

// ExportCount returns how many exports the store has received.
func (s *Store) ExportCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exports
}
