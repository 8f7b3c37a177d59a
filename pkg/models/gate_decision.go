package models

import (
	"fmt"
	"strings"
	"time"
)

const GateSchemaVersion = "1.0"

type GateOutcome string

const (
	GateApprove GateOutcome = "approve"
	GateReject  GateOutcome = "reject"
)

// GateDecision is a reviewer's latest verdict on a gate of a work item.
type GateDecision struct {
	SchemaVersion  string      `json:"schemaVersion"            validate:"required"`
	WorkItemID     string      `json:"workItemId"               validate:"required"`
	GateKey        string      `json:"gateKey"                  validate:"required"`
	Decision       GateOutcome `json:"decision"                 validate:"required,oneof=approve reject"`
	Reasons        []string    `json:"reasons"`
	Reviewer       string      `json:"reviewer"                 validate:"required"`
	DecidedAt      time.Time   `json:"decidedAt"                validate:"required"`
	ReentryStepKey string      `json:"reentryStepKey,omitempty"`
}

// ReentryStep is the step a rejected work item returns to.
func (d GateDecision) ReentryStep() string {
	if d.ReentryStepKey != "" {
		return d.ReentryStepKey
	}

	return d.GateKey
}

// Validate checks the decision fields. A rejection must carry at least one non-blank reason.
func (d GateDecision) Validate() error {
	err := ValidateStruct(d)
	if err != nil {
		return fmt.Errorf("gate %s: %w", d.GateKey, err)
	}

	if d.Decision != GateReject {
		return nil
	}

	for _, reason := range d.Reasons {
		if strings.TrimSpace(reason) != "" {
			return nil
		}
	}

	return fmt.Errorf("gate %s: %w: reasons are required when rejecting", d.GateKey, ErrInvalid)
}
