package client

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the client.
var (
	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrNotAnObject is returned when a response body is valid JSON but not an object.
	ErrNotAnObject = errors.New("response is not a JSON object")
)

// TransientError is a failure expected to succeed on retry: timeouts,
// connection-level errors and 5xx responses.
type TransientError struct {
	URL        string
	StatusCode int
	ErrorClass ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient %s error (status %d) for %s", e.ErrorClass, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("transient %s error for %s: %v", e.ErrorClass, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalError is a failure that will never succeed unmodified: 4xx responses
// and malformed top-level documents.
type FatalError struct {
	URL        string
	StatusCode int
	ErrorClass ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal %s error (status %d) for %s: %v", e.ErrorClass, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("fatal %s error (status %d) for %s", e.ErrorClass, e.StatusCode, e.URL)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// FetchExhaustedError is returned once the retry budget for a URL is spent.
type FetchExhaustedError struct {
	URL       string
	Attempts  int
	Waited    time.Duration
	LastError error
}

// Error implements the error interface.
func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("fetch %s exhausted after %d attempts (waited %s): %v",
		e.URL, e.Attempts, e.Waited, e.LastError)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchExhaustedError) Unwrap() error {
	return e.LastError
}

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err (or anything it wraps) is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		// 4xx and undecodable bodies never succeed unmodified
		return false
	}
}
