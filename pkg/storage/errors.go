// Package storage holds the error types shared by every storage backend.
package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a looked-up record or object does not exist.
var ErrNotFound = errors.New("not found")

// StorageUnavailableError reports a backend that cannot be reached or
// cannot complete a non item-scoped operation (connect, begin, commit,
// bucket creation).
type StorageUnavailableError struct {
	Backend string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable (%s): %v", e.Backend, e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err as a *StorageUnavailableError.
func Unavailable(backend, op string, err error) error {
	return &StorageUnavailableError{Backend: backend, Op: op, Err: err}
}

// IsUnavailable reports whether err (or anything it wraps) is a StorageUnavailableError.
func IsUnavailable(err error) bool {
	var ue *StorageUnavailableError
	return errors.As(err, &ue)
}
