package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStatus is returned when a status string is not a canonical status
	ErrUnknownStatus = errors.New("unknown job status")

	// ErrMissingFileID is returned when a file_uploaded event carries no fileId
	ErrMissingFileID = errors.New("event has no fileId")

	// ErrMissingEventKind is returned when a payload has no event field
	ErrMissingEventKind = errors.New("event has no kind")
)

// InvalidEventError marks a malformed or unrecognizable inbound event.
// Such events are acknowledged and dropped, never retried.
type InvalidEventError struct {
	Reason string
	Err    error
}

func (e *InvalidEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid event: %s: %v", e.Reason, e.Err)
	}
	return "invalid event: " + e.Reason
}

func (e *InvalidEventError) Unwrap() error {
	return e.Err
}

// NewInvalidEventError creates a new InvalidEventError
func NewInvalidEventError(reason string, err error) error {
	return &InvalidEventError{Reason: reason, Err: err}
}

// PersistenceError wraps any failure of a job store operation.
// Unavailable is set when the store could not be reached at all
// (connection failure or timeout) as opposed to rejecting the operation.
type PersistenceError struct {
	Op          string
	Err         error
	Unavailable bool
}

func (e *PersistenceError) Error() string {
	if e.Unavailable {
		return fmt.Sprintf("job store unavailable during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("job store %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new PersistenceError for the given operation
func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// NewUnavailableError creates a PersistenceError flagged as unavailable
func NewUnavailableError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err, Unavailable: true}
}

// IsInvalidEvent reports whether err is or wraps an InvalidEventError
func IsInvalidEvent(err error) bool {
	var target *InvalidEventError
	return errors.As(err, &target)
}

// IsUnavailable reports whether err is a PersistenceError flagged unavailable
func IsUnavailable(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target) && target.Unavailable
}
