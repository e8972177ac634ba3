package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrAlreadyExists is returned when creating a record whose id is taken.
	ErrAlreadyExists = errors.New("persistence: already exists")
	// ErrConflict is returned when a conditional write finds a newer version
	// than the one it was read at.
	ErrConflict = errors.New("persistence: version conflict")
)
