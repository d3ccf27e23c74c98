package storage

import "errors"

// Storage errors shared by all implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyClosed is returned when closing a trade that is not ACTIVE.
	ErrAlreadyClosed = errors.New("trade already closed")

	// ErrAlreadyResolved is returned when resolving an approval that is
	// no longer PENDING.
	ErrAlreadyResolved = errors.New("approval already resolved")

	// ErrVersionConflict is returned when a config write loses an
	// optimistic-concurrency race.
	ErrVersionConflict = errors.New("config version conflict")
)
