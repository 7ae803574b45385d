package repository

import "errors"

var (
	ErrNotFound = errors.New("record not found")

	// ErrStaleVersion means an update lost an optimistic-concurrency
	// race: the row's version no longer matched the one the caller
	// loaded.
	ErrStaleVersion = errors.New("stale session version")
)
