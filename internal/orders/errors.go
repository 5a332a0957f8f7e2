package orders

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNoActiveSession indicates the table has no open seating.
	ErrNoActiveSession = errors.New("no active session for table")
	// ErrSessionOpen indicates the table already has an active seating.
	ErrSessionOpen = errors.New("table already has an active session")
	// ErrNotOpen indicates the order is not in the open state.
	ErrNotOpen = errors.New("order is not open")
)
