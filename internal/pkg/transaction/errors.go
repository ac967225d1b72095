package transaction

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller input that can never succeed as given.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound covers unknown ids and records that already expired.
	ErrNotFound = errors.New("transaction not found")
	// ErrStoreUnavailable wraps infrastructure faults of the backing store.
	ErrStoreUnavailable = errors.New("transaction store unavailable")
	// ErrStateInconsistency is returned when a terminal record receives a
	// different terminal outcome.
	ErrStateInconsistency = errors.New("transaction state inconsistency")
	// ErrAlreadyExists is returned by Create for a reused id.
	ErrAlreadyExists = errors.New("transaction already exists")
)

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
