/*
ledger.go - Point ledger interface

PURPOSE:
  The Ledger is the source of truth for house standings. Posting an event
  appends it to the log AND bumps the house's running total in the same
  atomic store operation - the leaderboard can never drift from the log.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: events are never updated or deleted
  2. ATOMIC POST: event append and total bump happen together or not at all
  3. AUDITABLE: every score change carries who, when, and why

CORRECTIONS:
  A mistaken award is corrected by posting a second event with a negative
  delta. Both events remain in the log.

SEE ALSO:
  - store/memory: in-memory implementation (tests, dev)
  - store/sqlite: SQLite implementation
*/
package points

import "context"

// Ledger records point events and serves the standings.
type Ledger interface {
	// Post appends an event and adjusts the house total atomically.
	// The event's house must be one of Houses().
	Post(ctx context.Context, ev Event) error

	// Totals returns the current score of every house.
	Totals(ctx context.Context) ([]Total, error)

	// Events returns all posted events, oldest first.
	Events(ctx context.Context) ([]Event, error)
}
