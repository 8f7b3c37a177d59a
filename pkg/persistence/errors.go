// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrNotFound indicates a record was not found by the given identifier.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists indicates a write-once record with the same identifier already exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrInvalidID indicates an identifier that cannot be used as a storage key.
	ErrInvalidID = errors.New("invalid identifier")
)

// RecordError wraps record-level errors with the operation and record context.
type RecordError struct {
	Op   string // Operation being performed (e.g., "Create", "Get", "Append")
	Kind string // Record kind (claim, handoff, gate, work item, schedule)
	ID   string // Record identifier if applicable
	Err  error  // Underlying error
}

func (e *RecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Kind, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op, kind, id string, err error) *RecordError {
	return &RecordError{
		Op:   op,
		Kind: kind,
		ID:   id,
		Err:  err,
	}
}

// IsNotFound checks if an error indicates a record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error indicates a write-once record already exists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
