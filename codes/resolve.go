/*
resolve.go - Three-tier attribute resolution

PURPOSE:
  Decides which house, owner, and reason a redemption is credited to.
  Pure functions over a code snapshot and the request - no store access -
  so the tie-break rules are testable on their own.

PRIORITY ORDER (mutually exclusive, first match wins):
  1. Explicit value on the request. Admins may always supply one;
     non-admins only when the code's allowSetting* flag is set. Non-admin
     explicit values must also pass the allow-list.
  2. The caller's own session attribute (house / identity), when the code
     has autoSet* and the caller is not an admin. Must pass the allow-list.
  3. The code's fixed value. If the code carries none, resolution fails
     and the redemption is rejected.

SEE ALSO:
  - predicate.go: uses these to evaluate full eligibility
*/
package codes

import "github.com/emberhall/house-points/points"

// Source identifies which tier produced a resolved attribute.
type Source int

const (
	SourceExplicit Source = iota // value supplied with the request
	SourceSession                // caller's own house or identity
	SourceFixed                  // value baked into the code
)

func (s Source) String() string {
	switch s {
	case SourceExplicit:
		return "explicit"
	case SourceSession:
		return "session"
	default:
		return "fixed"
	}
}

// HouseResolution is the outcome of resolving the credited house.
type HouseResolution struct {
	House  points.House
	Source Source
}

// OwnerResolution is the outcome of resolving the credited owner.
type OwnerResolution struct {
	Owner  string
	Source Source
}

func houseAllowed(c *Code, h points.House) bool {
	if len(c.AllowedHouses) == 0 {
		return true
	}
	for _, allowed := range c.AllowedHouses {
		if allowed == h {
			return true
		}
	}
	return false
}

func ownerAllowed(c *Code, o string) bool {
	if len(c.AllowedOwners) == 0 {
		return true
	}
	for _, allowed := range c.AllowedOwners {
		if allowed == o {
			return true
		}
	}
	return false
}

// ResolveHouse decides which house a redemption credits. Returns false
// when no tier applies.
func ResolveHouse(c *Code, explicit *points.House, caller Caller) (HouseResolution, bool) {
	if explicit != nil {
		if !caller.Admin {
			if !c.AllowSettingHouse || !houseAllowed(c, *explicit) {
				return HouseResolution{}, false
			}
		}
		return HouseResolution{House: *explicit, Source: SourceExplicit}, true
	}
	if !caller.Admin && caller.House != nil && c.AutoSetHouse {
		if !houseAllowed(c, *caller.House) {
			return HouseResolution{}, false
		}
		return HouseResolution{House: *caller.House, Source: SourceSession}, true
	}
	if c.House != nil {
		return HouseResolution{House: *c.House, Source: SourceFixed}, true
	}
	return HouseResolution{}, false
}

// ResolveOwner decides which owner a redemption credits. Symmetric to
// ResolveHouse with identity in place of house.
func ResolveOwner(c *Code, explicit *string, caller Caller) (OwnerResolution, bool) {
	if explicit != nil {
		if !caller.Admin {
			if !c.AllowSettingOwner || !ownerAllowed(c, *explicit) {
				return OwnerResolution{}, false
			}
		}
		return OwnerResolution{Owner: *explicit, Source: SourceExplicit}, true
	}
	if !caller.Admin && caller.Identity != "" && c.AutoSetOwner {
		if !ownerAllowed(c, caller.Identity) {
			return OwnerResolution{}, false
		}
		return OwnerResolution{Owner: caller.Identity, Source: SourceSession}, true
	}
	if c.Owner != nil {
		return OwnerResolution{Owner: *c.Owner, Source: SourceFixed}, true
	}
	return OwnerResolution{}, false
}

// ResolveReason decides the reason recorded with the point event.
// Redeemer-supplied reasons apply only to non-admin calls on codes that
// opt in; everything else keeps the code's fixed reason.
func ResolveReason(c *Code, explicit *string, caller Caller) string {
	if !caller.Admin && explicit != nil && c.AllowSettingReason {
		return *explicit
	}
	return c.Reason
}
