package models

import "errors"

var (
	// ErrInvalid marks a model that failed its construction rules.
	ErrInvalid = errors.New("invalid model")
	// ErrStepNotFound is returned when a workflow has no step with the requested key.
	ErrStepNotFound = errors.New("step not found")
	// ErrInvalidTransition is returned when a work item cannot move to the requested state.
	ErrInvalidTransition = errors.New("invalid work item transition")
)
