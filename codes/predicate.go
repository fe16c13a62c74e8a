/*
predicate.go - Eligibility predicates

PURPOSE:
  The full redemption eligibility check as a pure function over a code
  snapshot. The same function is evaluated inside the store's atomic
  update, so the quota checks and the counter increments cannot be
  interleaved with a concurrent redemption of the same code.

PREDICATE (conjunction):
  1. redeems < maxRedeems
  2. now within [redeemDateStart, redeemDateEnd] (absent bound = open)
  3. gating for non-admins: onlyAdmin unset; onlyLoggedIn requires a
     session; onlyEligible requires a confirmed house
  4. effective date within [dateMin, dateMax]
  5. amount within [amountMin, amountMax]
  6. house and owner resolution succeed (resolve.go)
  7. per-house and per-redeemer counters below their caps

  Preview uses a relaxed variant: no amount or effective date is known
  yet, so those clauses are replaced with bound-consistency checks, and
  attribution is checked for feasibility rather than resolved.

SEE ALSO:
  - engine.go: evaluates redeemable inside Store.Update
*/
package codes

import (
	"time"

	"github.com/shopspring/decimal"
)

func withinTime(t time.Time, min, max *time.Time) bool {
	if min != nil && t.Before(*min) {
		return false
	}
	if max != nil && t.After(*max) {
		return false
	}
	return true
}

func withinAmount(a decimal.Decimal, min, max *decimal.Decimal) bool {
	if min != nil && a.LessThan(*min) {
		return false
	}
	if max != nil && a.GreaterThan(*max) {
		return false
	}
	return true
}

// passesGates checks the caller-class restrictions. Admins bypass all
// three gates.
func passesGates(c *Code, caller Caller) bool {
	if caller.Admin {
		return true
	}
	if c.OnlyAdmin {
		return false
	}
	if c.OnlyLoggedIn && !caller.LoggedIn() {
		return false
	}
	if c.OnlyEligible && caller.House == nil {
		return false
	}
	return true
}

// redeemable evaluates the full eligibility conjunction against a
// snapshot and returns the resolved attribution on success.
func redeemable(c *Code, now time.Time, req Request) (HouseResolution, OwnerResolution, bool) {
	if c.Redeems >= c.MaxRedeems {
		return HouseResolution{}, OwnerResolution{}, false
	}
	if !withinTime(now, c.RedeemDateStart, c.RedeemDateEnd) {
		return HouseResolution{}, OwnerResolution{}, false
	}
	if !passesGates(c, req.Caller) {
		return HouseResolution{}, OwnerResolution{}, false
	}
	if !withinTime(req.EffectiveAt, c.DateMin, c.DateMax) {
		return HouseResolution{}, OwnerResolution{}, false
	}
	if !withinAmount(req.Amount, c.AmountMin, c.AmountMax) {
		return HouseResolution{}, OwnerResolution{}, false
	}

	house, ok := ResolveHouse(c, req.House, req.Caller)
	if !ok {
		return HouseResolution{}, OwnerResolution{}, false
	}
	owner, ok := ResolveOwner(c, req.Owner, req.Caller)
	if !ok {
		return HouseResolution{}, OwnerResolution{}, false
	}

	if c.RedeemedHouses[house.House] >= c.RedeemablePerHouse {
		return HouseResolution{}, OwnerResolution{}, false
	}
	if c.Redeemers[owner.Owner] >= c.RedeemablePerRedeemer {
		return HouseResolution{}, OwnerResolution{}, false
	}
	return house, owner, true
}

// houseFeasible mirrors the resolution tiers for a request carrying no
// explicit house. The session tier is binding when it applies: an
// allow-list miss or spent quota there fails resolution outright, so
// feasibility must not fall through to the fixed value either.
func houseFeasible(c *Code, caller Caller) bool {
	if caller.Admin {
		return true
	}
	if c.AllowSettingHouse {
		return true
	}
	if caller.House != nil && c.AutoSetHouse {
		return houseAllowed(c, *caller.House) && c.RedeemedHouses[*caller.House] < c.RedeemablePerHouse
	}
	return c.House != nil && c.RedeemedHouses[*c.House] < c.RedeemablePerHouse
}

// ownerFeasible is the owner analogue of houseFeasible.
func ownerFeasible(c *Code, caller Caller) bool {
	if caller.Admin {
		return true
	}
	if c.AllowSettingOwner {
		return true
	}
	if caller.Identity != "" && c.AutoSetOwner {
		return ownerAllowed(c, caller.Identity) && c.Redeemers[caller.Identity] < c.RedeemablePerRedeemer
	}
	return c.Owner != nil && c.Redeemers[*c.Owner] < c.RedeemablePerRedeemer
}

// previewable reports whether the code would currently be redeemable by
// this caller. No amount or effective date is known at preview time, so
// the bounds are only checked for self-consistency.
func previewable(c *Code, now time.Time, caller Caller) bool {
	if c.Redeems >= c.MaxRedeems {
		return false
	}
	if !withinTime(now, c.RedeemDateStart, c.RedeemDateEnd) {
		return false
	}
	if !passesGates(c, caller) {
		return false
	}
	if c.AmountMin != nil && c.AmountMax != nil && c.AmountMax.LessThan(*c.AmountMin) {
		return false
	}
	if c.DateMin != nil && c.DateMax != nil && c.DateMax.Before(*c.DateMin) {
		return false
	}
	return houseFeasible(c, caller) && ownerFeasible(c, caller)
}
