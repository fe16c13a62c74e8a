/*
store.go - Code persistence interface

PURPOSE:
  Abstracts the code store behind an atomic check-and-mutate primitive.
  Quota enforcement depends on Update being indivisible: the predicate is
  evaluated and the counters advanced in one step with respect to other
  updates of the same code. Never read-modify-write a Code outside
  Update.

IMPLEMENTATIONS:
  store/memory: mutex-guarded map (tests, dev)
  store/sqlite: SQL transaction per update

SEE ALSO:
  - engine.go: the only mutator of stored codes
*/
package codes

import "context"

// Store persists codes. Implementations must make Update atomic with
// respect to concurrent Updates of the same code.
type Store interface {
	// Get returns the code, or nil when no such code exists.
	Get(ctx context.Context, code string) (*Code, error)

	// Insert stores a new code. Returns false when the code string is
	// already taken.
	Insert(ctx context.Context, c *Code) (bool, error)

	// Update atomically applies fn to the stored code. fn inspects the
	// snapshot and either mutates it and returns true, or returns false
	// to leave the record untouched. Update reports whether the mutation
	// was applied; a missing code is (false, nil).
	Update(ctx context.Context, code string, fn func(*Code) bool) (bool, error)

	// DeleteWhere removes every code matching fn and returns how many
	// were removed.
	DeleteWhere(ctx context.Context, fn func(*Code) bool) (int, error)
}
