package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned when no record exists for a domain.
	ErrRecordNotFound = errors.New("domain record not found")

	// ErrInvalidTransition is returned when a status change is not in the state table.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidDomain is returned when a domain name fails validation.
	ErrInvalidDomain = errors.New("invalid domain name")

	// ErrAnalysisUnavailable is returned when an analysis could not be scheduled.
	ErrAnalysisUnavailable = errors.New("analysis is currently unavailable")
)

// PersistenceError reports a failed store operation. No record mutation
// happened when it is returned from the initial transition.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps err unless it is nil or already a PersistenceError.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistenceError reports whether err is or wraps a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
