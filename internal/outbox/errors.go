package outbox

import "errors"

// ErrNotFound indicates no entry exists for the requested identifier.
var ErrNotFound = errors.New("outbox entry not found")

// ErrUnknownMutation indicates a payload with no registered schema for its
// (entity, operation) pair.
var ErrUnknownMutation = errors.New("unknown mutation")
