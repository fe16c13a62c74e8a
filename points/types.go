/*
Package points provides the house standings ledger.

PURPOSE:
  This package contains the types and interfaces for tracking points per
  house. Every award - whether entered directly by an administrator or
  earned through a redeemable code - is recorded as an immutable Event,
  and a running Total per house is kept alongside the event log so the
  leaderboard can be served without replaying history.

KEY CONCEPTS IN THIS FILE (types.go):
  - House: one of a fixed, closed set of team identifiers
  - Event: an immutable ledger entry recording a points change
  - Total: the running per-house score shown on the leaderboard

DESIGN PRINCIPLES:
  1. Immutability: Events are never modified after posting
  2. Precision: decimal.Decimal for point amounts, no float drift
  3. Dual bookkeeping: the Total and the Event are written in one atomic
     store operation, so the leaderboard never disagrees with the log

SEE ALSO:
  - ledger.go: Ledger interface
  - stats.go: Category aggregation over the event log
  - codes/: The redemption engine that posts code-derived events
*/
package points

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOUSE - Closed enumeration of teams
// =============================================================================

// House identifies a team. The set of houses is fixed at compile time;
// values outside Houses() are rejected by ValidHouse.
type House string

const (
	HouseRed    House = "red"
	HouseBlue   House = "blue"
	HouseGreen  House = "green"
	HouseYellow House = "yellow"
)

// Houses returns every house, in display order.
func Houses() []House {
	return []House{HouseRed, HouseBlue, HouseGreen, HouseYellow}
}

// ValidHouse reports whether h is one of the known houses.
func ValidHouse(h House) bool {
	for _, known := range Houses() {
		if h == known {
			return true
		}
	}
	return false
}

// =============================================================================
// EVENT - Atomic change to a house's score
// =============================================================================

// Event is a single points change. EffectiveAt is the date the points are
// attributed to, which can differ from RecordedAt (the wall-clock time the
// event was posted).
type Event struct {
	ID          string
	House       House
	Delta       decimal.Decimal
	EffectiveAt time.Time
	RecordedAt  time.Time
	AddedBy     string
	Owner       string
	Reason      string

	// Audit fields for code redemptions
	FromCode  bool   // true when the points came from a redeemed code
	ClaimedBy string // identity of the redeemer, if any
	ByAdmin   bool   // true when an administrator performed the redemption
}

// =============================================================================
// TOTAL - Running score per house
// =============================================================================

// Total is the current score of a house.
type Total struct {
	House       House
	Points      decimal.Decimal
	LastChanged time.Time
}

// =============================================================================
// STATS - Derived views for the dashboard
// =============================================================================

// Category is the sum of all events sharing a reason.
type Category struct {
	Name   string
	Amount decimal.Decimal
}

// DatedCategory is the sum of all events sharing a reason and an effective day.
type DatedCategory struct {
	Name   string
	Date   time.Time
	Amount decimal.Decimal
}

// TotalWithStats is a Total enriched with its category breakdown.
type TotalWithStats struct {
	Total
	Categories      []Category
	DatedCategories []DatedCategory
}
