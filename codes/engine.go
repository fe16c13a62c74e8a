/*
engine.go - Preview, Redeem, Issue

PURPOSE:
  The redemption engine proper. Ties the pure predicates to the store's
  atomic update and posts the resulting point event to the ledger.

FAILURE SEMANTICS:
  Eligibility failures are not errors: Redeem returns (false, nil) and
  Preview returns (nil, nil). Which clause failed is deliberately not
  reported - a failed redemption must not leak whether the code exists
  or how it is configured. Store failures are errors.

LEDGER POSTING:
  The counter increment is authoritative: once Update applies, the
  redemption has happened. The ledger post is a second write; if it
  fails, Redeem returns applied=true together with the error so the
  caller knows points were counted but not yet posted. There is no
  two-phase link between the two writes.

SEE ALSO:
  - predicate.go: the eligibility conjunction
  - store.go: atomicity contract
*/
package codes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emberhall/house-points/points"
)

// Engine evaluates, applies, and issues redeemable codes.
type Engine struct {
	store  Store
	ledger points.Ledger
	log    zerolog.Logger
	now    func() time.Time
}

// NewEngine creates an engine over the given store and ledger.
func NewEngine(store Store, ledger points.Ledger, log zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		ledger: ledger,
		log:    log,
		now:    time.Now,
	}
}

// WithClock overrides the engine's clock. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Preview returns the redeemer-facing view of a code if and only if the
// code would currently be redeemable by this caller. Nothing is
// reserved; the answer may be stale by the time Redeem is attempted.
func (e *Engine) Preview(ctx context.Context, code string, caller Caller) (*Public, error) {
	c, err := e.store.Get(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("look up code: %w", err)
	}
	if c == nil || !previewable(c, e.now(), caller) {
		return nil, nil
	}
	return c.Public(), nil
}

// Redeem attempts a redemption. The eligibility predicate and the
// counter increments run inside one atomic store update, so two
// concurrent redemptions can never both claim the last slot of any
// quota.
//
// Returns (false, nil) when the code is missing or ineligible; nothing
// is modified in that case. Returns applied=true with a non-nil error
// when the counters advanced but the ledger post failed.
func (e *Engine) Redeem(ctx context.Context, req Request) (bool, error) {
	now := e.now()

	var house HouseResolution
	var owner OwnerResolution
	var reason string

	applied, err := e.store.Update(ctx, req.Code, func(c *Code) bool {
		h, o, ok := redeemable(c, now, req)
		if !ok {
			return false
		}
		c.Redeems++
		c.RedeemedHouses[h.House]++
		c.Redeemers[o.Owner]++
		house, owner = h, o
		reason = ResolveReason(c, req.Reason, req.Caller)
		return true
	})
	if err != nil {
		return false, fmt.Errorf("redeem %q: %w", req.Code, err)
	}
	if !applied {
		e.log.Debug().Str("code", req.Code).Msg("redemption rejected")
		return false, nil
	}

	ev := points.Event{
		ID:          uuid.NewString(),
		House:       house.House,
		Delta:       req.Amount,
		EffectiveAt: req.EffectiveAt,
		RecordedAt:  now,
		AddedBy:     "code",
		Owner:       owner.Owner,
		Reason:      reason,
		FromCode:    true,
		ClaimedBy:   req.Caller.Identity,
		ByAdmin:     req.Caller.Admin,
	}
	if err := e.ledger.Post(ctx, ev); err != nil {
		e.log.Error().Err(err).Str("code", req.Code).Str("house", string(house.House)).
			Msg("redemption counted but ledger post failed")
		return true, fmt.Errorf("post redemption event: %w", err)
	}

	e.log.Info().
		Str("code", req.Code).
		Str("house", string(house.House)).
		Str("house_source", house.Source.String()).
		Str("owner_source", owner.Source.String()).
		Str("amount", req.Amount.String()).
		Bool("admin", req.Caller.Admin).
		Msg("code redeemed")
	return true, nil
}

// Issue creates a new code from cfg and returns its code string, or ""
// when the insert was not applied. Before inserting, codes that are both
// past their redemption window AND fully redeemed are swept away; a code
// that is merely expired, or merely exhausted, is kept.
func (e *Engine) Issue(ctx context.Context, cfg Config) (string, error) {
	now := e.now()

	swept, err := e.store.DeleteWhere(ctx, func(c *Code) bool {
		return c.RedeemDateEnd != nil && c.RedeemDateEnd.Before(now) && c.Redeems >= c.MaxRedeems
	})
	if err != nil {
		return "", fmt.Errorf("sweep codes: %w", err)
	}
	if swept > 0 {
		e.log.Info().Int("count", swept).Msg("swept spent codes")
	}

	id, err := newCodeID(CodeLength)
	if err != nil {
		return "", err
	}

	ok, err := e.store.Insert(ctx, cfg.build(id))
	if err != nil {
		return "", fmt.Errorf("insert code: %w", err)
	}
	if !ok {
		return "", nil
	}

	e.log.Info().Str("code", id).Msg("code issued")
	return id, nil
}
