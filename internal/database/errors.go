package database

import "errors"

var (
	// ErrNotFound entity absent or outside the caller's tenant scope.
	ErrNotFound = errors.New("not found")

	// ErrNotAvailable not enough free units now or at the projected date.
	ErrNotAvailable = errors.New("insufficient availability")

	// ErrBlacklisted the user has an active ban.
	ErrBlacklisted = errors.New("user is blacklisted")

	// ErrConflict the item is held by another user's active reservation.
	ErrConflict = errors.New("conflicting reservation")

	// ErrAlreadyExists duplicate active reservation or waitlist entry.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState the entity is not in a state that allows the transition.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrValidation bad quantity, missing field or similar input problem.
	ErrValidation = errors.New("validation failed")

	// ErrPastDate the requested date is in the past.
	ErrPastDate = errors.New("date is in the past")

	// ErrDateTooFar the requested date exceeds the tenant's horizon.
	ErrDateTooFar = errors.New("date is too far in the future")

	// ErrConcurrentModification optimistic concurrency check failed.
	ErrConcurrentModification = errors.New("concurrent modification")
)
