// Package memory provides in-memory implementations of the code store
// and the point ledger, for tests and development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/emberhall/house-points/codes"
	"github.com/emberhall/house-points/points"
)

// =============================================================================
// MEMORY STORE - codes.Store + points.Ledger behind one mutex
// =============================================================================

type Store struct {
	mu     sync.Mutex
	codes  map[string]*codes.Code
	events []points.Event
	totals map[points.House]points.Total
}

func New() *Store {
	s := &Store{
		codes:  make(map[string]*codes.Code),
		totals: make(map[points.House]points.Total),
	}
	for _, h := range points.Houses() {
		s.totals[h] = points.Total{House: h}
	}
	return s
}

// Compile-time interface checks
var (
	_ codes.Store   = (*Store)(nil)
	_ points.Ledger = (*Store)(nil)
)

// =============================================================================
// CODE STORE (codes.Store interface)
// =============================================================================

func (s *Store) Get(_ context.Context, code string) (*codes.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[code]
	if !ok {
		return nil, nil
	}
	return c.Clone(), nil
}

func (s *Store) Insert(_ context.Context, c *codes.Code) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[c.Code]; exists {
		return false, nil
	}
	s.codes[c.Code] = c.Clone()
	return true, nil
}

// Update hands fn a clone of the stored record; only when fn accepts is
// the clone swapped in. A rejected update leaves no trace.
func (s *Store) Update(_ context.Context, code string, fn func(*codes.Code) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[code]
	if !ok {
		return false, nil
	}
	next := c.Clone()
	if !fn(next) {
		return false, nil
	}
	s.codes[code] = next
	return true, nil
}

func (s *Store) DeleteWhere(_ context.Context, fn func(*codes.Code) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, c := range s.codes {
		if fn(c.Clone()) {
			delete(s.codes, id)
			count++
		}
	}
	return count, nil
}

// =============================================================================
// POINT LEDGER (points.Ledger interface)
// =============================================================================

func (s *Store) Post(_ context.Context, ev points.Event) error {
	if !points.ValidHouse(ev.House) {
		return points.ErrUnknownHouse
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)

	total := s.totals[ev.House]
	total.Points = total.Points.Add(ev.Delta)
	if ev.RecordedAt.IsZero() {
		total.LastChanged = time.Now().UTC()
	} else {
		total.LastChanged = ev.RecordedAt
	}
	s.totals[ev.House] = total
	return nil
}

func (s *Store) Totals(_ context.Context) ([]points.Total, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]points.Total, 0, len(s.totals))
	for _, h := range points.Houses() {
		result = append(result, s.totals[h])
	}
	return result, nil
}

func (s *Store) Events(_ context.Context) ([]points.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]points.Event, len(s.events))
	copy(result, s.events)
	return result, nil
}
