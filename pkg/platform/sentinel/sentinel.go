package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and the contact service translates them into coded domain errors.
//
//   - ErrNotFound: row does not exist or is tombstoned
//   - ErrConflict: a concurrent writer won the race for the same row
//   - ErrInvalidState: row is in the wrong state for the mutation (e.g. demoting a secondary)
//   - ErrUnavailable: the backing store or lock service cannot be reached
//   - ErrLockHeld: an identifier lock could not be acquired in time
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrLockHeld     = errors.New("lock held")
)
