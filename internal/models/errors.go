package models

import "errors"

var (
	// ErrNotFound covers both codes that never existed and soft-deleted links.
	ErrNotFound = errors.New("link not found")

	// ErrAliasTaken means the code is already mapped, including by a
	// soft-deleted record (deleted codes stay reserved).
	ErrAliasTaken = errors.New("alias already taken")

	// ErrUnavailable wraps datastore timeouts; callers must fail closed.
	ErrUnavailable = errors.New("link store unavailable")
)
