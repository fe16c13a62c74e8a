package codes_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberhall/house-points/codes"
	"github.com/emberhall/house-points/points"
	"github.com/emberhall/house-points/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2026, time.September, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*codes.Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	engine := codes.NewEngine(store, store, zerolog.Nop()).
		WithClock(func() time.Time { return testNow })
	return engine, store
}

func housePtr(h points.House) *points.House { return &h }

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func boolPtr(b bool) *bool { return &b }

func timePtr(t time.Time) *time.Time { return &t }

func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }

// issue creates a code and fails the test on any problem.
func issue(t *testing.T, engine *codes.Engine, cfg codes.Config) string {
	t.Helper()
	id, err := engine.Issue(context.Background(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func student(h points.House, identity string) codes.Caller {
	return codes.Caller{House: housePtr(h), Identity: identity}
}

func redeemReq(code string, caller codes.Caller) codes.Request {
	return codes.Request{
		Code:        code,
		Amount:      decimal.NewFromInt(5),
		EffectiveAt: testNow,
		Caller:      caller,
	}
}

// =============================================================================
// ISSUANCE
// =============================================================================

func TestIssue_AppliesDefaults(t *testing.T) {
	// GIVEN: An empty issuance config
	// WHEN: A code is issued
	// THEN: The stored record carries the documented defaults

	engine, store := newTestEngine(t)
	id := issue(t, engine, codes.Config{})

	assert.Len(t, id, codes.CodeLength)

	c, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, 1, c.MaxRedeems)
	assert.Equal(t, 1, c.RedeemablePerHouse)
	assert.Equal(t, 1, c.RedeemablePerRedeemer)
	assert.True(t, c.OnlyEligible)
	assert.True(t, c.OnlyLoggedIn)
	assert.True(t, c.AutoSetHouse)
	assert.True(t, c.AutoSetOwner)
	assert.False(t, c.OnlyAdmin)
	assert.False(t, c.AllowSettingHouse)
	assert.False(t, c.ShowAllowedHouses)
	assert.Equal(t, 0, c.Redeems)
	for _, h := range points.Houses() {
		n, seeded := c.RedeemedHouses[h]
		assert.True(t, seeded)
		assert.Equal(t, 0, n)
	}
}

func TestIssue_ExplicitZeroBeatsDefault(t *testing.T) {
	// A pointer field set to its zero value is an explicit choice, not an
	// omission.
	engine, store := newTestEngine(t)
	id := issue(t, engine, codes.Config{
		MaxRedeems:   intPtr(10),
		OnlyEligible: boolPtr(false),
		AutoSetHouse: boolPtr(false),
	})

	c, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 10, c.MaxRedeems)
	assert.False(t, c.OnlyEligible)
	assert.False(t, c.AutoSetHouse)
}

func TestIssue_SweepsOnlyExpiredAndExhausted(t *testing.T) {
	// GIVEN: An expired+exhausted code, a merely expired code, and a
	//        merely exhausted code
	// WHEN: A new code is issued
	// THEN: Only the expired+exhausted one is swept

	engine, store := newTestEngine(t)
	ctx := context.Background()

	past := testNow.Add(-time.Hour)
	future := testNow.Add(time.Hour)

	spent := issue(t, engine, codes.Config{RedeemDateEnd: timePtr(past)})
	expired := issue(t, engine, codes.Config{RedeemDateEnd: timePtr(past), MaxRedeems: intPtr(5)})
	exhausted := issue(t, engine, codes.Config{RedeemDateEnd: timePtr(future)})

	// Exhaust two of them.
	for _, id := range []string{spent, exhausted} {
		applied, err := store.Update(ctx, id, func(c *codes.Code) bool {
			c.Redeems = c.MaxRedeems
			return true
		})
		require.NoError(t, err)
		require.True(t, applied)
	}

	issue(t, engine, codes.Config{})

	gone, err := store.Get(ctx, spent)
	require.NoError(t, err)
	assert.Nil(t, gone, "expired and exhausted code must be swept")

	kept, err := store.Get(ctx, expired)
	require.NoError(t, err)
	assert.NotNil(t, kept, "merely expired code must survive")

	kept, err = store.Get(ctx, exhausted)
	require.NoError(t, err)
	assert.NotNil(t, kept, "merely exhausted code must survive")
}

// =============================================================================
// REDEMPTION
// =============================================================================

func TestRedeem_SelfServiceClaim(t *testing.T) {
	// GIVEN: A default single-use code
	// WHEN: A logged-in student with a house redeems it
	// THEN: Their house is credited with an event attributed to them

	engine, store := newTestEngine(t)
	id := issue(t, engine, codes.Config{DisplayReason: "Quiz night", Reason: "Quiz night"})

	applied, err := engine.Redeem(context.Background(), redeemReq(id, student(points.HouseBlue, "sam@example.com")))
	require.NoError(t, err)
	require.True(t, applied)

	events, err := store.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, points.HouseBlue, ev.House)
	assert.True(t, ev.Delta.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "sam@example.com", ev.Owner)
	assert.Equal(t, "Quiz night", ev.Reason)
	assert.Equal(t, "code", ev.AddedBy)
	assert.True(t, ev.FromCode)
	assert.Equal(t, "sam@example.com", ev.ClaimedBy)
	assert.False(t, ev.ByAdmin)

	totals, err := store.Totals(context.Background())
	require.NoError(t, err)
	for _, total := range totals {
		if total.House == points.HouseBlue {
			assert.True(t, total.Points.Equal(decimal.NewFromInt(5)))
		} else {
			assert.True(t, total.Points.IsZero())
		}
	}
}

func TestRedeem_GlobalQuotaIsMonotonic(t *testing.T) {
	// GIVEN: A code with maxRedeems=2, open per-house/per-redeemer caps
	// WHEN: Three students redeem in sequence
	// THEN: The first two succeed and the third is rejected with no effect

	engine, store := newTestEngine(t)
	id := issue(t, engine, codes.Config{
		MaxRedeems:            intPtr(2),
		RedeemablePerHouse:    intPtr(10),
		RedeemablePerRedeemer: intPtr(10),
	})

	callers := []codes.Caller{
		student(points.HouseRed, "a@example.com"),
		student(points.HouseBlue, "b@example.com"),
		student(points.HouseGreen, "c@example.com"),
	}
	var outcomes []bool
	for _, caller := range callers {
		applied, err := engine.Redeem(context.Background(), redeemReq(id, caller))
		require.NoError(t, err)
		outcomes = append(outcomes, applied)
	}
	assert.Equal(t, []bool{true, true, false}, outcomes)

	c, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Redeems)

	events, err := store.Events(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestRedeem_PerHouseQuota(t *testing.T) {
	// Two students from the same house; the second is over the per-house
	// cap even though the global quota has room.
	engine, _ := newTestEngine(t)
	id := issue(t, engine, codes.Config{
		MaxRedeems:            intPtr(10),
		RedeemablePerRedeemer: intPtr(10),
	})

	applied, err := engine.Redeem(context.Background(), redeemReq(id, student(points.HouseRed, "a@example.com")))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = engine.Redeem(context.Background(), redeemReq(id, student(points.HouseRed, "b@example.com")))
	require.NoError(t, err)
	assert.False(t, applied)

	// A different house still has headroom.
	applied, err = engine.Redeem(context.Background(), redeemReq(id, student(points.HouseBlue, "c@example.com")))
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestRedeem_PerRedeemerQuota(t *testing.T) {
	engine, _ := newTestEngine(t)
	id := issue(t, engine, codes.Config{
		MaxRedeems:         intPtr(10),
		RedeemablePerHouse: intPtr(10),
	})

	caller := student(points.HouseRed, "again@example.com")

	applied, err := engine.Redeem(context.Background(), redeemReq(id, caller))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = engine.Redeem(context.Background(), redeemReq(id, caller))
	require.NoError(t, err)
	assert.False(t, applied, "same redeemer may not claim twice")
}

func TestRedeem_RejectionHasNoEffect(t *testing.T) {
	// GIVEN: A code with an amount ceiling
	// WHEN: A redemption over the ceiling is attempted
	// THEN: No counter moves and no event is posted

	engine, store := newTestEngine(t)
	id := issue(t, engine, codes.Config{AmountMax: decPtr(decimal.NewFromInt(10))})

	req := redeemReq(id, student(points.HouseRed, "a@example.com"))
	req.Amount = decimal.NewFromInt(50)

	applied, err := engine.Redeem(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, applied)

	c, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Redeems)
	assert.Empty(t, c.Redeemers)

	events, err := store.Events(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRedeem_MissingCode(t *testing.T) {
	engine, _ := newTestEngine(t)

	applied, err := engine.Redeem(context.Background(),
		redeemReq("NOSUCHCODE", student(points.HouseRed, "a@example.com")))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestRedeem_WallClockWindow(t *testing.T) {
	// The redemption window is checked against now, independent of the
	// event's effective date.
	engine, _ := newTestEngine(t)
	id := issue(t, engine, codes.Config{
		RedeemDateStart: timePtr(testNow.Add(time.Hour)),
	})

	applied, err := engine.Redeem(context.Background(), redeemReq(id, student(points.HouseRed, "a@example.com")))
	require.NoError(t, err)
	assert.False(t, applied, "window has not opened yet")

	// The window bounds are inclusive: a code opening exactly now is
	// already redeemable.
	atBoundary := issue(t, engine, codes.Config{
		RedeemDateStart: timePtr(testNow),
		RedeemDateEnd:   timePtr(testNow),
	})
	applied, err = engine.Redeem(context.Background(), redeemReq(atBoundary, student(points.HouseRed, "a@example.com")))
	require.NoError(t, err)
	assert.True(t, applied, "window opening at this instant must admit the redemption")
}

func TestRedeem_EffectiveDateWindow(t *testing.T) {
	// GIVEN: A code restricted to September effective dates
	// WHEN: Redeeming with an August effective date, then a September one
	// THEN: Only the September redemption applies

	engine, _ := newTestEngine(t)
	sep1 := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	sep30 := time.Date(2026, time.September, 30, 23, 59, 59, 0, time.UTC)
	id := issue(t, engine, codes.Config{
		DateMin:    timePtr(sep1),
		DateMax:    timePtr(sep30),
		MaxRedeems: intPtr(2),
	})

	req := redeemReq(id, student(points.HouseRed, "a@example.com"))
	req.EffectiveAt = time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC)
	applied, err := engine.Redeem(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, applied)

	req.EffectiveAt = time.Date(2026, time.September, 15, 0, 0, 0, 0, time.UTC)
	applied, err = engine.Redeem(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestRedeem_Gates(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// onlyLoggedIn (default): anonymous callers bounce, even when the
	// code could attribute via its fixed values.
	open := issue(t, engine, codes.Config{
		House: housePtr(points.HouseRed),
		Owner: strPtr("owner@example.com"),
	})
	applied, err := engine.Redeem(ctx, redeemReq(open, codes.Caller{}))
	require.NoError(t, err)
	assert.False(t, applied)

	// onlyEligible (default): logged in but without a confirmed house.
	applied, err = engine.Redeem(ctx, redeemReq(open, codes.Caller{Identity: "nohouse@example.com"}))
	require.NoError(t, err)
	assert.False(t, applied)

	// onlyAdmin: students bounce, admins pass.
	adminOnly := issue(t, engine, codes.Config{
		OnlyAdmin: true,
		House:     housePtr(points.HouseRed),
		Owner:     strPtr("owner@example.com"),
	})
	applied, err = engine.Redeem(ctx, redeemReq(adminOnly, student(points.HouseBlue, "s@example.com")))
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = engine.Redeem(ctx, redeemReq(adminOnly, codes.Caller{Admin: true}))
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestRedeem_ExplicitAttributesOnOptInCode(t *testing.T) {
	// GIVEN: A code that allows explicit house and owner within allow-lists
	// WHEN: A student redeems for another house and owner
	// THEN: The explicit values are credited, not the student's own

	engine, store := newTestEngine(t)
	id := issue(t, engine, codes.Config{
		AllowSettingHouse: true,
		AllowSettingOwner: true,
		AllowedHouses:     []points.House{points.HouseGreen},
		AllowedOwners:     []string{"captain@example.com"},
	})

	req := redeemReq(id, student(points.HouseRed, "helper@example.com"))
	req.House = housePtr(points.HouseGreen)
	req.Owner = strPtr("captain@example.com")

	applied, err := engine.Redeem(context.Background(), req)
	require.NoError(t, err)
	require.True(t, applied)

	events, err := store.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, points.HouseGreen, events[0].House)
	assert.Equal(t, "captain@example.com", events[0].Owner)
	assert.Equal(t, "helper@example.com", events[0].ClaimedBy)
}

func TestRedeem_ExplicitHouseOutsideAllowList(t *testing.T) {
	engine, _ := newTestEngine(t)
	id := issue(t, engine, codes.Config{
		AllowSettingHouse: true,
		AllowedHouses:     []points.House{points.HouseGreen},
	})

	req := redeemReq(id, student(points.HouseRed, "helper@example.com"))
	req.House = housePtr(points.HouseYellow)

	applied, err := engine.Redeem(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestRedeem_ConcurrentSingleUse(t *testing.T) {
	// GIVEN: A single-use code
	// WHEN: Many goroutines race to redeem it through the memory store
	// THEN: Exactly one wins

	engine, store := newTestEngine(t)
	id := issue(t, engine, codes.Config{
		OnlyEligible: boolPtr(false),
		OnlyLoggedIn: boolPtr(false),
		House:        housePtr(points.HouseRed),
		Owner:        strPtr("owner@example.com"),
	})

	const attempts = 32
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			applied, err := engine.Redeem(context.Background(), redeemReq(id, codes.Caller{}))
			assert.NoError(t, err)
			results <- applied
		}()
	}

	wins := 0
	for i := 0; i < attempts; i++ {
		if <-results {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	events, err := store.Events(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

// failingLedger rejects every post.
type failingLedger struct{}

func (failingLedger) Post(context.Context, points.Event) error {
	return errors.New("ledger down")
}

func (failingLedger) Totals(context.Context) ([]points.Total, error) { return nil, nil }

func (failingLedger) Events(context.Context) ([]points.Event, error) { return nil, nil }

func TestRedeem_LedgerFailureStillCounts(t *testing.T) {
	// GIVEN: A store that accepts the redemption but a ledger that is down
	// WHEN: Redeeming
	// THEN: applied=true together with the error; the counter has moved

	store := memory.New()
	engine := codes.NewEngine(store, failingLedger{}, zerolog.Nop()).
		WithClock(func() time.Time { return testNow })
	id := issue(t, engine, codes.Config{})

	applied, err := engine.Redeem(context.Background(), redeemReq(id, student(points.HouseRed, "a@example.com")))
	assert.True(t, applied)
	assert.Error(t, err)

	c, getErr := store.Get(context.Background(), id)
	require.NoError(t, getErr)
	assert.Equal(t, 1, c.Redeems)
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreview_MirrorsRedeemability(t *testing.T) {
	// GIVEN: A fresh single-use code
	// WHEN: Previewing before and after it is used up
	// THEN: The preview disappears once the code is no longer redeemable

	engine, _ := newTestEngine(t)
	id := issue(t, engine, codes.Config{DisplayReason: "Quiz night"})

	caller := student(points.HouseRed, "a@example.com")

	pub, err := engine.Preview(context.Background(), id, caller)
	require.NoError(t, err)
	require.NotNil(t, pub)
	assert.Equal(t, "Quiz night", pub.DisplayReason)

	applied, err := engine.Redeem(context.Background(), redeemReq(id, caller))
	require.NoError(t, err)
	require.True(t, applied)

	pub, err = engine.Preview(context.Background(), id, caller)
	require.NoError(t, err)
	assert.Nil(t, pub)
}

func TestPreview_MissingAndIneligibleLookAlike(t *testing.T) {
	// A missing code and a gated code both preview as nil; callers learn
	// nothing about which it was.
	engine, _ := newTestEngine(t)
	id := issue(t, engine, codes.Config{OnlyAdmin: true})

	pub, err := engine.Preview(context.Background(), id, student(points.HouseRed, "a@example.com"))
	require.NoError(t, err)
	assert.Nil(t, pub)

	pub, err = engine.Preview(context.Background(), "NOSUCHCODE", student(points.HouseRed, "a@example.com"))
	require.NoError(t, err)
	assert.Nil(t, pub)
}

func TestPreview_ProjectionHidesPrivateFields(t *testing.T) {
	// GIVEN: A code with an internal reason and hidden allow-lists
	// WHEN: Previewing
	// THEN: Only shown lists and public fields come back

	engine, _ := newTestEngine(t)
	id := issue(t, engine, codes.Config{
		DisplayReason:     "Quiz night",
		InternalReason:    "issued for the open evening",
		AllowSettingHouse: true,
		AllowedHouses:     []points.House{points.HouseRed, points.HouseBlue},
		AllowedOwners:     []string{"secret@example.com", "a@example.com"},
		ShowAllowedHouses: true,
	})

	pub, err := engine.Preview(context.Background(), id, student(points.HouseRed, "a@example.com"))
	require.NoError(t, err)
	require.NotNil(t, pub)

	assert.Equal(t, []points.House{points.HouseRed, points.HouseBlue}, pub.AllowedHouses)
	assert.Nil(t, pub.AllowedOwners, "unshown allow-list must be stripped")
	assert.True(t, pub.AllowSettingHouse)
}

func TestPreview_SessionAllowListMissMatchesRedeem(t *testing.T) {
	// GIVEN: A code with a fixed house, an allow-list, and auto-set
	// WHEN: A caller whose own house is outside the allow-list previews
	// THEN: Preview is nil, matching the redemption outcome; the session
	//       tier is binding and never falls back to the fixed house

	engine, _ := newTestEngine(t)
	id := issue(t, engine, codes.Config{
		House:         housePtr(points.HouseRed),
		AllowedHouses: []points.House{points.HouseRed},
	})

	outsider := student(points.HouseBlue, "blue@example.com")

	pub, err := engine.Preview(context.Background(), id, outsider)
	require.NoError(t, err)
	assert.Nil(t, pub)

	applied, err := engine.Redeem(context.Background(), redeemReq(id, outsider))
	require.NoError(t, err)
	assert.False(t, applied)

	// A caller inside the allow-list gets the other half of the
	// consistency property: non-nil preview, then a successful redeem
	// with matching arguments.
	insider := student(points.HouseRed, "red@example.com")

	pub, err = engine.Preview(context.Background(), id, insider)
	require.NoError(t, err)
	require.NotNil(t, pub)

	applied, err = engine.Redeem(context.Background(), redeemReq(id, insider))
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestPreview_SpentSessionQuotaMatchesRedeem(t *testing.T) {
	// GIVEN: A code with a fixed house and the caller's own house quota
	//        already spent
	// WHEN: A second student from that house previews and redeems
	// THEN: Both fail; the fixed house does not rescue the preview

	engine, _ := newTestEngine(t)
	id := issue(t, engine, codes.Config{
		House:                 housePtr(points.HouseBlue),
		MaxRedeems:            intPtr(10),
		RedeemablePerRedeemer: intPtr(10),
	})

	applied, err := engine.Redeem(context.Background(), redeemReq(id, student(points.HouseRed, "a@example.com")))
	require.NoError(t, err)
	require.True(t, applied)

	latecomer := student(points.HouseRed, "b@example.com")

	pub, err := engine.Preview(context.Background(), id, latecomer)
	require.NoError(t, err)
	assert.Nil(t, pub, "red quota is spent and the session tier is binding")

	applied, err = engine.Redeem(context.Background(), redeemReq(id, latecomer))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestPreview_QuotaHeadroomForCallersHouse(t *testing.T) {
	// GIVEN: A per-house cap of 1 and a red redemption already counted
	// WHEN: A red student and a blue student preview
	// THEN: Only the blue student still sees the code

	engine, _ := newTestEngine(t)
	id := issue(t, engine, codes.Config{
		MaxRedeems:            intPtr(10),
		RedeemablePerRedeemer: intPtr(10),
	})

	applied, err := engine.Redeem(context.Background(), redeemReq(id, student(points.HouseRed, "a@example.com")))
	require.NoError(t, err)
	require.True(t, applied)

	pub, err := engine.Preview(context.Background(), id, student(points.HouseRed, "b@example.com"))
	require.NoError(t, err)
	assert.Nil(t, pub, "red quota is spent")

	pub, err = engine.Preview(context.Background(), id, student(points.HouseBlue, "c@example.com"))
	require.NoError(t, err)
	assert.NotNil(t, pub)
}
