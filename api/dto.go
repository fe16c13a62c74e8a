/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Point amounts travel as JSON strings ("12.5") on the way out to avoid
  float precision loss in clients; decimal.Decimal accepts both strings
  and numbers on the way in.

SEE ALSO:
  - handlers.go: Uses these types
  - codes/types.go: Public, the preview projection served as-is
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/emberhall/house-points/codes"
	"github.com/emberhall/house-points/points"
)

// =============================================================================
// STANDINGS
// =============================================================================

// TotalDTO is one house's row on the leaderboard.
type TotalDTO struct {
	House       string `json:"house"`
	Points      string `json:"points"`
	LastChanged string `json:"last_changed"`
}

// CategoryDTO is a per-reason sum.
type CategoryDTO struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// DatedCategoryDTO is a per-reason, per-day sum.
type DatedCategoryDTO struct {
	Name   string `json:"name"`
	Date   string `json:"date"`
	Amount string `json:"amount"`
}

// TotalWithStatsDTO is a leaderboard row with its category breakdown.
type TotalWithStatsDTO struct {
	TotalDTO
	Categories      []CategoryDTO      `json:"categories"`
	DatedCategories []DatedCategoryDTO `json:"dated_categories"`
}

func toTotalDTO(t points.Total) TotalDTO {
	return TotalDTO{
		House:       string(t.House),
		Points:      t.Points.String(),
		LastChanged: t.LastChanged.UTC().Format(time.RFC3339),
	}
}

func toTotalDTOs(totals []points.Total) []TotalDTO {
	dtos := make([]TotalDTO, 0, len(totals))
	for _, t := range totals {
		dtos = append(dtos, toTotalDTO(t))
	}
	return dtos
}

func toTotalWithStatsDTO(t points.TotalWithStats) TotalWithStatsDTO {
	dto := TotalWithStatsDTO{
		TotalDTO:        toTotalDTO(t.Total),
		Categories:      []CategoryDTO{},
		DatedCategories: []DatedCategoryDTO{},
	}
	for _, c := range t.Categories {
		dto.Categories = append(dto.Categories, CategoryDTO{
			Name:   c.Name,
			Amount: c.Amount.String(),
		})
	}
	for _, c := range t.DatedCategories {
		dto.DatedCategories = append(dto.DatedCategories, DatedCategoryDTO{
			Name:   c.Name,
			Date:   c.Date.UTC().Format("2006-01-02"),
			Amount: c.Amount.String(),
		})
	}
	return dto
}

// =============================================================================
// POINTS
// =============================================================================

// AddPointsRequest is a direct admin award.
type AddPointsRequest struct {
	House       string          `json:"house"`
	Amount      decimal.Decimal `json:"amount"`
	EffectiveAt *time.Time      `json:"effective_at,omitempty"`
	Owner       string          `json:"owner,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// =============================================================================
// CODES
// =============================================================================

// IssueCodeRequest configures a new code. Absent fields take the
// issuance defaults.
type IssueCodeRequest struct {
	DisplayReason  string `json:"display_reason,omitempty"`
	InternalReason string `json:"internal_reason,omitempty"`

	AmountMin *decimal.Decimal `json:"amount_min,omitempty"`
	AmountMax *decimal.Decimal `json:"amount_max,omitempty"`
	DateMin   *time.Time       `json:"date_min,omitempty"`
	DateMax   *time.Time       `json:"date_max,omitempty"`

	RedeemDateStart *time.Time `json:"redeem_date_start,omitempty"`
	RedeemDateEnd   *time.Time `json:"redeem_date_end,omitempty"`

	House  string `json:"house,omitempty"`
	Owner  string `json:"owner,omitempty"`
	Reason string `json:"reason,omitempty"`

	AllowedHouses []string `json:"allowed_houses,omitempty"`
	AllowedOwners []string `json:"allowed_owners,omitempty"`

	MaxRedeems            *int `json:"max_redeems,omitempty"`
	RedeemablePerHouse    *int `json:"redeemable_per_house,omitempty"`
	RedeemablePerRedeemer *int `json:"redeemable_per_redeemer,omitempty"`

	OnlyAdmin    bool  `json:"only_admin,omitempty"`
	OnlyEligible *bool `json:"only_eligible,omitempty"`
	OnlyLoggedIn *bool `json:"only_logged_in,omitempty"`

	AutoSetHouse *bool `json:"auto_set_house,omitempty"`
	AutoSetOwner *bool `json:"auto_set_owner,omitempty"`

	AllowSettingHouse  bool `json:"allow_setting_house,omitempty"`
	AllowSettingOwner  bool `json:"allow_setting_owner,omitempty"`
	AllowSettingReason bool `json:"allow_setting_reason,omitempty"`
	ShowAllowedHouses  bool `json:"show_allowed_houses,omitempty"`
	ShowAllowedOwners  bool `json:"show_allowed_owners,omitempty"`
}

func (r IssueCodeRequest) toConfig() codes.Config {
	cfg := codes.Config{
		DisplayReason:  r.DisplayReason,
		InternalReason: r.InternalReason,

		AmountMin: r.AmountMin,
		AmountMax: r.AmountMax,
		DateMin:   r.DateMin,
		DateMax:   r.DateMax,

		RedeemDateStart: r.RedeemDateStart,
		RedeemDateEnd:   r.RedeemDateEnd,

		Reason: r.Reason,

		AllowedOwners: r.AllowedOwners,

		MaxRedeems:            r.MaxRedeems,
		RedeemablePerHouse:    r.RedeemablePerHouse,
		RedeemablePerRedeemer: r.RedeemablePerRedeemer,

		OnlyAdmin:    r.OnlyAdmin,
		OnlyEligible: r.OnlyEligible,
		OnlyLoggedIn: r.OnlyLoggedIn,

		AutoSetHouse: r.AutoSetHouse,
		AutoSetOwner: r.AutoSetOwner,

		AllowSettingHouse:  r.AllowSettingHouse,
		AllowSettingOwner:  r.AllowSettingOwner,
		AllowSettingReason: r.AllowSettingReason,
		ShowAllowedHouses:  r.ShowAllowedHouses,
		ShowAllowedOwners:  r.ShowAllowedOwners,
	}
	if r.House != "" {
		h := points.House(r.House)
		cfg.House = &h
	}
	if r.Owner != "" {
		o := r.Owner
		cfg.Owner = &o
	}
	for _, h := range r.AllowedHouses {
		cfg.AllowedHouses = append(cfg.AllowedHouses, points.House(h))
	}
	return cfg
}

// IssueCodeResponse carries the generated code string.
type IssueCodeResponse struct {
	Code string `json:"code"`
}

// RedeemRequest is a redemption attempt. House, owner, and reason are
// explicit overrides; leave them out to use the caller's own attributes
// or the code's fixed values.
type RedeemRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	EffectiveAt *time.Time      `json:"effective_at,omitempty"`
	House       *string         `json:"house,omitempty"`
	Owner       *string         `json:"owner,omitempty"`
	Reason      *string         `json:"reason,omitempty"`
}

// RedeemResponse reports whether the redemption applied.
type RedeemResponse struct {
	Applied bool `json:"applied"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
