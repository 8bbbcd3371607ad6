package calibration

import "sync/atomic"

// Store holds one channel's active table behind an atomic pointer. The
// processing loop loads a snapshot each cycle; the calibration procedure
// is the single writer and swaps whole tables, so a reader observes either
// the old table or the new one in full, never a partial mix of points.
type Store struct {
	table atomic.Pointer[Table]
}

// NewStore creates a store seeded with the given table, or the ideal
// default table when nil.
func NewStore(t *Table) *Store {
	s := &Store{}
	if t == nil {
		t = Default()
	}
	s.table.Store(t)
	return s
}

// Load returns the current table snapshot.
func (s *Store) Load() *Table {
	return s.table.Load()
}

// Swap atomically replaces the table.
func (s *Store) Swap(t *Table) {
	if t == nil {
		return
	}
	s.table.Store(t)
}
