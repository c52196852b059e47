package database

import "errors"

var (
	// ErrNotFound is returned when a period is not stored.
	ErrNotFound = errors.New("period not found in store")
	// ErrStorage wraps every failure of the underlying database.
	ErrStorage = errors.New("storage failure")
)
