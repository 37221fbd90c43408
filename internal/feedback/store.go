// Package feedback holds recent execution failures so the next advisory
// request can report them back to the decision-maker.
package feedback

import (
	"sync"
	"time"

	"github.com/dmelton/grokswing/internal/models"
)

// MaxEntries bounds the store; the oldest entry is evicted first.
const MaxEntries = 10

// Store is a bounded FIFO of trade errors. The trading cycle writes to it
// while the dashboard reads it from HTTP handler goroutines, so access is
// guarded by a mutex.
type Store struct {
	mu      sync.Mutex
	entries []models.TradeError
	now     func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Record appends an execution failure, evicting the oldest entry when the
// store is full.
func (s *Store) Record(symbol string, action models.ActionType, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, models.TradeError{
		Symbol:    symbol,
		Action:    action,
		Message:   message,
		Timestamp: s.now(),
	})
	if len(s.entries) > MaxEntries {
		s.entries = s.entries[len(s.entries)-MaxEntries:]
	}
}

// Drain returns the stored errors oldest-first without clearing them.
// Clearing is explicit: the advisory client calls Clear only after the
// errors have been incorporated into a successful prompt round-trip.
func (s *Store) Drain() []models.TradeError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TradeError, len(s.entries))
	copy(out, s.entries)
	return out
}

// Clear empties the store as a whole unit.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = s.entries[:0]
}

// Len returns the number of stored errors.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
