package store

import "errors"

var (
	// ErrNotFound is returned when a job or attempt does not exist
	ErrNotFound = errors.New("record not found")

	// ErrInvalidState is returned when an operation is attempted against a
	// job whose status does not permit it, e.g. creating an attempt on a
	// RUNNING job. Such violations abort the current dispatch tick but are
	// not fatal to the process.
	ErrInvalidState = errors.New("job is not in a valid state for this operation")
)
