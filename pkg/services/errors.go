// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/persistence"
	"github.com/dukex/handoff/pkg/registry"
)

// Error kinds. Every error returned by a service matches exactly one of them with errors.Is.
var (
	// ErrValidation marks malformed input, rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a state clash the caller can recover from (new attempt id, accept state).
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks an unknown workflow, step or work item.
	ErrNotFound = errors.New("not found")
	// ErrInvariantViolation marks a write that would break the audit trail rules.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Error codes carried by ServiceError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeConflict   = "CONFLICT"
	CodeNotFound   = "NOT_FOUND"
	CodeInvariant  = "INVARIANT_VIOLATION"
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code
	Message string // Human-readable message
	Kind    error  // One of the error kinds above
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return target == e.Kind || errors.Is(e.Err, target)
}

func newServiceError(op, code string, kind error, message string, err error) *ServiceError {
	if err == nil {
		err = kind
	}

	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Kind:    kind,
		Err:     err,
	}
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return newServiceError(op, CodeValidation, ErrValidation, message, err)
}

// NewConflictError creates a new conflict error with context.
func NewConflictError(op, message string, err error) *ServiceError {
	return newServiceError(op, CodeConflict, ErrConflict, message, err)
}

// NewNotFoundError creates a new not-found error with context.
func NewNotFoundError(op, message string, err error) *ServiceError {
	return newServiceError(op, CodeNotFound, ErrNotFound, message, err)
}

// NewInvariantError creates a new invariant violation error with context.
func NewInvariantError(op, message string, err error) *ServiceError {
	return newServiceError(op, CodeInvariant, ErrInvariantViolation, message, err)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// Classify maps model and persistence errors onto the service taxonomy. Errors that are
// already classified pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}

	switch {
	case errors.Is(err, models.ErrInvalid), errors.Is(err, persistence.ErrInvalidID):
		return NewValidationError(op, err.Error(), err)
	case errors.Is(err, models.ErrStepNotFound), errors.Is(err, registry.ErrWorkflowNotFound), persistence.IsNotFound(err):
		return NewNotFoundError(op, err.Error(), err)
	case errors.Is(err, models.ErrInvalidTransition), persistence.IsAlreadyExists(err):
		return NewConflictError(op, err.Error(), err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// Process exit codes of the command-line front end.
const (
	ExitValidation = 2
	ExitInvariant  = 4
	ExitNotFound   = 5
	ExitConflict   = 6
	ExitUnexpected = 9
)

// ExitCode maps an error onto the process exit code of its kind.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case IsValidationError(err):
		return ExitValidation
	case IsInvariantViolation(err):
		return ExitInvariant
	case IsNotFoundError(err):
		return ExitNotFound
	case IsConflictError(err):
		return ExitConflict
	default:
		return ExitUnexpected
	}
}
