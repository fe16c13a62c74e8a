/*
Package sqlite provides the SQLite-backed implementation of the code
store and the point ledger.

PURPOSE:
  Implements codes.Store and points.Ledger on SQLite. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

ATOMICITY:
  codes.Store.Update runs SELECT -> predicate -> UPDATE inside a single
  SQL transaction, serialized by a store-level mutex. The eligibility
  check and the counter increments are therefore indivisible with
  respect to concurrent redemptions of the same code.

  points.Ledger.Post writes the event row and bumps the house total in
  one transaction, so the standings never disagree with the log.

KEY TABLES:
  codes:        code records; counter maps stored as JSON columns on the
                row, so a code's counters move together
  point_events: append-only log of every score change
  house_totals: running per-house score, seeded with every house at 0

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/housepoints.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - codes/store.go: Interface definition and atomicity contract
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/emberhall/house-points/codes"
	"github.com/emberhall/house-points/points"
)

// Store implements codes.Store and points.Ledger using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Compile-time interface checks
var (
	_ codes.Store   = (*Store)(nil)
	_ points.Ledger = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", points.ErrStoreUnavailable, err)
	}

	// An in-memory database exists per connection; a second pooled
	// connection would see an empty schema.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema and seeds the house totals.
func (s *Store) migrate() error {
	schema := `
	-- Redeemable codes. Counter maps live as JSON on the row so the
	-- whole counter set moves in one UPDATE.
	CREATE TABLE IF NOT EXISTS codes (
		code TEXT PRIMARY KEY,
		display_reason TEXT NOT NULL DEFAULT '',
		internal_reason TEXT NOT NULL DEFAULT '',
		amount_min TEXT,
		amount_max TEXT,
		date_min TEXT,
		date_max TEXT,
		redeem_date_start TEXT,
		redeem_date_end TEXT,
		house TEXT,
		owner TEXT,
		reason TEXT NOT NULL DEFAULT '',
		allow_setting_house BOOLEAN NOT NULL DEFAULT FALSE,
		allow_setting_owner BOOLEAN NOT NULL DEFAULT FALSE,
		allow_setting_reason BOOLEAN NOT NULL DEFAULT FALSE,
		auto_set_house BOOLEAN NOT NULL DEFAULT FALSE,
		auto_set_owner BOOLEAN NOT NULL DEFAULT FALSE,
		allowed_houses_json TEXT NOT NULL DEFAULT '[]',
		allowed_owners_json TEXT NOT NULL DEFAULT '[]',
		show_allowed_houses BOOLEAN NOT NULL DEFAULT FALSE,
		show_allowed_owners BOOLEAN NOT NULL DEFAULT FALSE,
		max_redeems INTEGER NOT NULL,
		redeems INTEGER NOT NULL DEFAULT 0,
		redeemable_per_house INTEGER NOT NULL,
		redeemed_houses_json TEXT NOT NULL DEFAULT '{}',
		redeemable_per_redeemer INTEGER NOT NULL,
		redeemers_json TEXT NOT NULL DEFAULT '{}',
		only_admin BOOLEAN NOT NULL DEFAULT FALSE,
		only_eligible BOOLEAN NOT NULL DEFAULT FALSE,
		only_logged_in BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_codes_redeem_date_end
		ON codes(redeem_date_end) WHERE redeem_date_end IS NOT NULL;

	-- Point events (append-only log)
	CREATE TABLE IF NOT EXISTS point_events (
		id TEXT PRIMARY KEY,
		house TEXT NOT NULL,
		delta TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		added_by TEXT,
		owner TEXT,
		reason TEXT,
		from_code BOOLEAN NOT NULL DEFAULT FALSE,
		claimed_by TEXT,
		by_admin BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_point_events_house
		ON point_events(house);
	CREATE INDEX IF NOT EXISTS idx_point_events_effective_at
		ON point_events(effective_at);

	-- Running totals per house
	CREATE TABLE IF NOT EXISTS house_totals (
		house TEXT PRIMARY KEY,
		points TEXT NOT NULL,
		last_changed TEXT NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	for _, h := range points.Houses() {
		_, err := s.db.Exec(
			`INSERT OR IGNORE INTO house_totals (house, points, last_changed) VALUES (?, '0', ?)`,
			string(h), time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// CODE STORE (codes.Store interface)
// =============================================================================

const codeColumns = `code, display_reason, internal_reason, amount_min, amount_max, date_min, date_max,
	redeem_date_start, redeem_date_end, house, owner, reason,
	allow_setting_house, allow_setting_owner, allow_setting_reason,
	auto_set_house, auto_set_owner, allowed_houses_json, allowed_owners_json,
	show_allowed_houses, show_allowed_owners, max_redeems, redeems,
	redeemable_per_house, redeemed_houses_json, redeemable_per_redeemer,
	redeemers_json, only_admin, only_eligible, only_logged_in`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCode(row rowScanner) (*codes.Code, error) {
	var (
		c               codes.Code
		amountMin       sql.NullString
		amountMax       sql.NullString
		dateMin         sql.NullString
		dateMax         sql.NullString
		redeemDateStart sql.NullString
		redeemDateEnd   sql.NullString
		house           sql.NullString
		owner           sql.NullString
		allowedHouses   string
		allowedOwners   string
		redeemedHouses  string
		redeemers       string
	)

	err := row.Scan(
		&c.Code, &c.DisplayReason, &c.InternalReason, &amountMin, &amountMax, &dateMin, &dateMax,
		&redeemDateStart, &redeemDateEnd, &house, &owner, &c.Reason,
		&c.AllowSettingHouse, &c.AllowSettingOwner, &c.AllowSettingReason,
		&c.AutoSetHouse, &c.AutoSetOwner, &allowedHouses, &allowedOwners,
		&c.ShowAllowedHouses, &c.ShowAllowedOwners, &c.MaxRedeems, &c.Redeems,
		&c.RedeemablePerHouse, &redeemedHouses, &c.RedeemablePerRedeemer,
		&redeemers, &c.OnlyAdmin, &c.OnlyEligible, &c.OnlyLoggedIn,
	)
	if err != nil {
		return nil, err
	}

	c.AmountMin = parseNullDecimal(amountMin)
	c.AmountMax = parseNullDecimal(amountMax)
	c.DateMin = parseNullTime(dateMin)
	c.DateMax = parseNullTime(dateMax)
	c.RedeemDateStart = parseNullTime(redeemDateStart)
	c.RedeemDateEnd = parseNullTime(redeemDateEnd)
	if house.Valid {
		h := points.House(house.String)
		c.House = &h
	}
	if owner.Valid {
		o := owner.String
		c.Owner = &o
	}

	if err := json.Unmarshal([]byte(allowedHouses), &c.AllowedHouses); err != nil {
		return nil, fmt.Errorf("decode allowed houses: %w", err)
	}
	if err := json.Unmarshal([]byte(allowedOwners), &c.AllowedOwners); err != nil {
		return nil, fmt.Errorf("decode allowed owners: %w", err)
	}
	if err := json.Unmarshal([]byte(redeemedHouses), &c.RedeemedHouses); err != nil {
		return nil, fmt.Errorf("decode redeemed houses: %w", err)
	}
	if err := json.Unmarshal([]byte(redeemers), &c.Redeemers); err != nil {
		return nil, fmt.Errorf("decode redeemers: %w", err)
	}
	if c.RedeemedHouses == nil {
		c.RedeemedHouses = make(map[points.House]int)
	}
	if c.Redeemers == nil {
		c.Redeemers = make(map[string]int)
	}
	return &c, nil
}

func (s *Store) Get(ctx context.Context, code string) (*codes.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM codes WHERE code = ?`, code)

	c, err := scanCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load code: %w", err)
	}
	return c, nil
}

func (s *Store) Insert(ctx context.Context, c *codes.Code) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowedHouses, _ := json.Marshal(c.AllowedHouses)
	allowedOwners, _ := json.Marshal(c.AllowedOwners)
	redeemedHouses, _ := json.Marshal(c.RedeemedHouses)
	redeemers, _ := json.Marshal(c.Redeemers)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO codes (`+codeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Code, c.DisplayReason, c.InternalReason,
		decimalString(c.AmountMin), decimalString(c.AmountMax),
		timeString(c.DateMin), timeString(c.DateMax),
		timeString(c.RedeemDateStart), timeString(c.RedeemDateEnd),
		houseString(c.House), ownerString(c.Owner), c.Reason,
		c.AllowSettingHouse, c.AllowSettingOwner, c.AllowSettingReason,
		c.AutoSetHouse, c.AutoSetOwner, string(allowedHouses), string(allowedOwners),
		c.ShowAllowedHouses, c.ShowAllowedOwners, c.MaxRedeems, c.Redeems,
		c.RedeemablePerHouse, string(redeemedHouses), c.RedeemablePerRedeemer,
		string(redeemers), c.OnlyAdmin, c.OnlyEligible, c.OnlyLoggedIn,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert code: %w", err)
	}
	return true, nil
}

// Update runs SELECT -> fn -> UPDATE in one transaction. fn only ever
// advances counters, so the UPDATE writes just the counter columns.
func (s *Store) Update(ctx context.Context, code string, fn func(*codes.Code) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM codes WHERE code = ?`, code)

	c, err := scanCode(row)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load code: %w", err)
	}

	if !fn(c) {
		return false, nil
	}

	redeemedHouses, _ := json.Marshal(c.RedeemedHouses)
	redeemers, _ := json.Marshal(c.Redeemers)

	_, err = tx.ExecContext(ctx, `
		UPDATE codes
		SET redeems = ?, redeemed_houses_json = ?, redeemers_json = ?
		WHERE code = ?`,
		c.Redeems, string(redeemedHouses), string(redeemers), code,
	)
	if err != nil {
		return false, fmt.Errorf("update code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update: %w", err)
	}
	return true, nil
}

func (s *Store) DeleteWhere(ctx context.Context, fn func(*codes.Code) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+codeColumns+` FROM codes`)
	if err != nil {
		return 0, fmt.Errorf("scan codes: %w", err)
	}

	var doomed []string
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan code: %w", err)
		}
		if fn(c) {
			doomed = append(doomed, c.Code)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, code := range doomed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM codes WHERE code = ?`, code); err != nil {
			return 0, fmt.Errorf("delete code: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return len(doomed), nil
}

// =============================================================================
// POINT LEDGER (points.Ledger interface)
// =============================================================================

// Post appends the event and bumps the house total in one transaction.
func (s *Store) Post(ctx context.Context, ev points.Event) error {
	if !points.ValidHouse(ev.House) {
		return points.ErrUnknownHouse
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	recordedAt := ev.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO point_events
		(id, house, delta, effective_at, recorded_at, added_by, owner, reason, from_code, claimed_by, by_admin)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.House), ev.Delta.String(),
		ev.EffectiveAt.UTC().Format(time.RFC3339),
		recordedAt.UTC().Format(time.RFC3339),
		nullIfEmpty(ev.AddedBy), nullIfEmpty(ev.Owner), nullIfEmpty(ev.Reason),
		ev.FromCode, nullIfEmpty(ev.ClaimedBy), ev.ByAdmin,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT points FROM house_totals WHERE house = ?`, string(ev.House),
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("load total: %w", err)
	}

	total, err := decimal.NewFromString(current)
	if err != nil {
		return fmt.Errorf("decode total: %w", err)
	}
	total = total.Add(ev.Delta)

	_, err = tx.ExecContext(ctx,
		`UPDATE house_totals SET points = ?, last_changed = ? WHERE house = ?`,
		total.String(), recordedAt.UTC().Format(time.RFC3339), string(ev.House),
	)
	if err != nil {
		return fmt.Errorf("update total: %w", err)
	}

	return tx.Commit()
}

func (s *Store) Totals(ctx context.Context) ([]points.Total, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT house, points, last_changed FROM house_totals`)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	byHouse := make(map[points.House]points.Total)
	for rows.Next() {
		var house, value, lastChanged string
		if err := rows.Scan(&house, &value, &lastChanged); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("decode total: %w", err)
		}
		changed, _ := time.Parse(time.RFC3339, lastChanged)
		byHouse[points.House(house)] = points.Total{
			House:       points.House(house),
			Points:      amount,
			LastChanged: changed,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]points.Total, 0, len(byHouse))
	for _, h := range points.Houses() {
		result = append(result, byHouse[h])
	}
	return result, nil
}

func (s *Store) Events(ctx context.Context) ([]points.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, house, delta, effective_at, recorded_at, added_by, owner, reason, from_code, claimed_by, by_admin
		FROM point_events
		ORDER BY effective_at ASC, recorded_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []points.Event
	for rows.Next() {
		var (
			ev          points.Event
			house       string
			delta       string
			effectiveAt string
			recordedAt  string
			addedBy     sql.NullString
			owner       sql.NullString
			reason      sql.NullString
			claimedBy   sql.NullString
		)
		if err := rows.Scan(&ev.ID, &house, &delta, &effectiveAt, &recordedAt,
			&addedBy, &owner, &reason, &ev.FromCode, &claimedBy, &ev.ByAdmin); err != nil {
			return nil, err
		}
		ev.House = points.House(house)
		ev.Delta, err = decimal.NewFromString(delta)
		if err != nil {
			return nil, fmt.Errorf("decode delta: %w", err)
		}
		ev.EffectiveAt, _ = time.Parse(time.RFC3339, effectiveAt)
		ev.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		ev.AddedBy = addedBy.String
		ev.Owner = owner.String
		ev.Reason = reason.String
		ev.ClaimedBy = claimedBy.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func timeString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func decimalString(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func houseString(h *points.House) sql.NullString {
	if h == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*h), Valid: true}
}

func ownerString(o *string) sql.NullString {
	if o == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *o, Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseNullDecimal(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid {
		return nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil
	}
	return &d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
