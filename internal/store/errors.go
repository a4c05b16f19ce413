package store

import "errors"

var (
	// ErrConflict is returned when a conditional commit loses its re-check:
	// an occupying booking overlaps the requested slot, the staff member was
	// deactivated, or the schedule no longer covers the interval.
	ErrConflict = errors.New("conflict")

	ErrNotFound = errors.New("not found")

	// ErrIdempotencyConflict marks a booking ID reuse where the replayed
	// request differs from the one originally committed under that key.
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)
