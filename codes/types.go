/*
Package codes provides the promotional code redemption engine.

PURPOSE:
  A redeemable code is a configurable token that grants a bounded,
  rule-constrained point award. This package owns the code data model,
  the eligibility rules, the three-tier attribute resolution, and the
  atomic redemption path that keeps quotas from ever being exceeded.

KEY CONCEPTS:
  - Code: the stored record with its rule configuration and counters
  - Public: the redeemer-facing projection (private fields stripped)
  - Caller: who is attempting the operation (house, identity, admin)
  - Request: a redemption attempt with its explicit attribute overrides
  - Config: issuance-time configuration with defaults applied

ATTRIBUTE RESOLUTION (house, owner, reason):
  Three tiers, highest priority first:
    1. explicit  - value supplied with the request (gated by allowSetting*)
    2. session   - the caller's own house/identity (gated by autoSet*)
    3. fixed     - the value baked into the code at issuance
  One code template serves three redemption flows this way: an admin
  free-form grant, a self-service claim, and a hardcoded templated grant.

QUOTAS:
  redeems < maxRedeems                        (global)
  redeemedHouses[h] < redeemablePerHouse      (per credited house)
  redeemers[o] < redeemablePerRedeemer        (per credited owner)
  All three are re-checked inside the store's atomic update; see engine.go.

SEE ALSO:
  - resolve.go: resolution decision procedures
  - predicate.go: eligibility predicates
  - engine.go: Preview / Redeem / Issue
*/
package codes

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/emberhall/house-points/points"
)

// =============================================================================
// CODE - Stored record
// =============================================================================

// Code is a redeemable code with its rule configuration and running
// counters. Created by Issue, mutated only through Store.Update, removed
// only by the issuance-time sweep.
type Code struct {
	Code           string
	DisplayReason  string
	InternalReason string // audit-only, never exposed to redeemers

	// Inclusive bounds on the point amount a redemption may apply.
	// nil means unbounded on that side.
	AmountMin *decimal.Decimal
	AmountMax *decimal.Decimal

	// Inclusive bounds on the effective date attributed to the point
	// event. Distinct from the redemption wall-clock window below.
	DateMin *time.Time
	DateMax *time.Time

	// Wall-clock window during which the code may be redeemed at all.
	RedeemDateStart *time.Time
	RedeemDateEnd   *time.Time

	// Fixed fallback attribution, applied when neither an explicit value
	// nor an auto-set value resolves.
	House  *points.House
	Owner  *string
	Reason string

	AllowSettingHouse  bool
	AllowSettingOwner  bool
	AllowSettingReason bool
	AutoSetHouse       bool
	AutoSetOwner       bool

	// Allow-lists for auto-set or explicit values. Empty = unrestricted.
	AllowedHouses []points.House
	AllowedOwners []string

	// Whether the allow-lists are included in the Public projection.
	ShowAllowedHouses bool
	ShowAllowedOwners bool

	MaxRedeems int
	Redeems    int

	RedeemablePerHouse int
	RedeemedHouses     map[points.House]int

	RedeemablePerRedeemer int
	Redeemers             map[string]int

	OnlyAdmin    bool
	OnlyEligible bool
	OnlyLoggedIn bool
}

// Clone returns a deep copy. Stores hand clones to predicate functions so
// a rejected update cannot leak partial mutations.
func (c *Code) Clone() *Code {
	dup := *c
	dup.AllowedHouses = append([]points.House(nil), c.AllowedHouses...)
	dup.AllowedOwners = append([]string(nil), c.AllowedOwners...)
	dup.RedeemedHouses = make(map[points.House]int, len(c.RedeemedHouses))
	for h, n := range c.RedeemedHouses {
		dup.RedeemedHouses[h] = n
	}
	dup.Redeemers = make(map[string]int, len(c.Redeemers))
	for o, n := range c.Redeemers {
		dup.Redeemers[o] = n
	}
	return &dup
}

// =============================================================================
// PUBLIC - Redeemer-facing projection
// =============================================================================

// Public is what a redeemer sees when previewing a code. Internal reason,
// counters, gating flags, and unshown allow-lists are stripped.
type Public struct {
	DisplayReason      string           `json:"display_reason,omitempty"`
	AmountMin          *decimal.Decimal `json:"amount_min,omitempty"`
	AmountMax          *decimal.Decimal `json:"amount_max,omitempty"`
	DateMin            *time.Time       `json:"date_min,omitempty"`
	DateMax            *time.Time       `json:"date_max,omitempty"`
	AllowedHouses      []points.House   `json:"allowed_houses,omitempty"`
	AllowedOwners      []string         `json:"allowed_owners,omitempty"`
	AllowSettingHouse  bool             `json:"allow_setting_house"`
	AutoSetHouse       bool             `json:"auto_set_house"`
	AllowSettingOwner  bool             `json:"allow_setting_owner"`
	AutoSetOwner       bool             `json:"auto_set_owner"`
	AllowSettingReason bool             `json:"allow_setting_reason"`
}

// Public returns the redeemer-facing projection of the code.
func (c *Code) Public() *Public {
	p := &Public{
		DisplayReason:      c.DisplayReason,
		AmountMin:          c.AmountMin,
		AmountMax:          c.AmountMax,
		DateMin:            c.DateMin,
		DateMax:            c.DateMax,
		AllowSettingHouse:  c.AllowSettingHouse,
		AutoSetHouse:       c.AutoSetHouse,
		AllowSettingOwner:  c.AllowSettingOwner,
		AutoSetOwner:       c.AutoSetOwner,
		AllowSettingReason: c.AllowSettingReason,
	}
	if c.ShowAllowedHouses {
		p.AllowedHouses = append([]points.House(nil), c.AllowedHouses...)
	}
	if c.ShowAllowedOwners {
		p.AllowedOwners = append([]string(nil), c.AllowedOwners...)
	}
	return p
}

// =============================================================================
// CALLER / REQUEST
// =============================================================================

// Caller identifies who is attempting an operation. Filled in by the
// session layer upstream of this package.
type Caller struct {
	House    *points.House // confirmed house, nil if none
	Identity string        // stable identifier (email), "" if anonymous
	Admin    bool
}

// LoggedIn reports whether the caller has any session at all.
func (c Caller) LoggedIn() bool {
	return c.Identity != "" || c.House != nil
}

// Request is a single redemption attempt.
type Request struct {
	Code        string
	Amount      decimal.Decimal
	EffectiveAt time.Time

	// Explicit attribute overrides, nil when not supplied.
	House  *points.House
	Owner  *string
	Reason *string

	Caller Caller
}

// =============================================================================
// CONFIG - Issuance configuration with defaults
// =============================================================================

// Config carries the issuance-time configuration of a code. Pointer
// fields distinguish "not set" from an explicit zero; Issue applies the
// defaults below.
//
// Defaults: MaxRedeems=1, RedeemablePerRedeemer=1, RedeemablePerHouse=1,
// OnlyEligible=true, OnlyLoggedIn=true, AutoSetHouse=true,
// AutoSetOwner=true; everything else false/empty.
type Config struct {
	DisplayReason  string
	InternalReason string

	AmountMin *decimal.Decimal
	AmountMax *decimal.Decimal
	DateMin   *time.Time
	DateMax   *time.Time

	RedeemDateStart *time.Time
	RedeemDateEnd   *time.Time

	House  *points.House
	Owner  *string
	Reason string

	AllowedHouses []points.House
	AllowedOwners []string

	MaxRedeems            *int
	RedeemablePerHouse    *int
	RedeemablePerRedeemer *int

	OnlyAdmin    bool
	OnlyEligible *bool
	OnlyLoggedIn *bool

	AutoSetHouse *bool
	AutoSetOwner *bool

	AllowSettingHouse  bool
	AllowSettingOwner  bool
	AllowSettingReason bool
	ShowAllowedHouses  bool
	ShowAllowedOwners  bool
}

// build materializes a Code from the config, applying defaults and
// zeroing the counters. Every house starts at 0 in RedeemedHouses.
func (cfg Config) build(code string) *Code {
	c := &Code{
		Code:           code,
		DisplayReason:  cfg.DisplayReason,
		InternalReason: cfg.InternalReason,

		AmountMin: cfg.AmountMin,
		AmountMax: cfg.AmountMax,
		DateMin:   cfg.DateMin,
		DateMax:   cfg.DateMax,

		RedeemDateStart: cfg.RedeemDateStart,
		RedeemDateEnd:   cfg.RedeemDateEnd,

		House:  cfg.House,
		Owner:  cfg.Owner,
		Reason: cfg.Reason,

		AllowedHouses: append([]points.House(nil), cfg.AllowedHouses...),
		AllowedOwners: append([]string(nil), cfg.AllowedOwners...),

		MaxRedeems:            intOr(cfg.MaxRedeems, 1),
		RedeemablePerHouse:    intOr(cfg.RedeemablePerHouse, 1),
		RedeemablePerRedeemer: intOr(cfg.RedeemablePerRedeemer, 1),

		OnlyAdmin:    cfg.OnlyAdmin,
		OnlyEligible: boolOr(cfg.OnlyEligible, true),
		OnlyLoggedIn: boolOr(cfg.OnlyLoggedIn, true),

		AutoSetHouse: boolOr(cfg.AutoSetHouse, true),
		AutoSetOwner: boolOr(cfg.AutoSetOwner, true),

		AllowSettingHouse:  cfg.AllowSettingHouse,
		AllowSettingOwner:  cfg.AllowSettingOwner,
		AllowSettingReason: cfg.AllowSettingReason,
		ShowAllowedHouses:  cfg.ShowAllowedHouses,
		ShowAllowedOwners:  cfg.ShowAllowedOwners,

		Redeemers:      make(map[string]int),
		RedeemedHouses: make(map[points.House]int, len(points.Houses())),
	}
	for _, h := range points.Houses() {
		c.RedeemedHouses[h] = 0
	}
	return c
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
