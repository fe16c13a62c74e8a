/*
errors.go - Centralized error types for the points ledger

PURPOSE:
  All ledger error values in one place. Callers use errors.Is to branch;
  implementations wrap these with fmt.Errorf("%w") and context.

SEE ALSO:
  - ledger.go: Uses these errors
  - codes/engine.go: Redemption failure semantics
*/
package points

import "errors"

var (
	// ErrUnknownHouse is returned when an event names a house outside the
	// fixed enumeration.
	ErrUnknownHouse = errors.New("unknown house")

	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached or a write fails at the database level.
	ErrStoreUnavailable = errors.New("store unavailable")
)
