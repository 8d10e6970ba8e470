package store

import "errors"

// Failure taxonomy shared by the store, the world-state machine and the
// transport layer. Callers are expected to branch with errors.Is.
var (
	// ErrValidation marks malformed input or a missing mandatory field.
	// Nothing is persisted.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized marks a canonical-scope write without a verified
	// approval reference. Nothing is persisted beyond the denial audit.
	ErrUnauthorized = errors.New("authorization failed")

	// ErrConflict marks a rejected world-state edge or a lost
	// concurrent-transition race. State is unchanged.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable marks unreachable persistence or a timed-out
	// dependency. Surfaced distinctly so callers can treat memory
	// failure as non-fatal.
	ErrUnavailable = errors.New("dependency unavailable")

	// ErrNotFound marks a lookup miss.
	ErrNotFound = errors.New("not found")
)
