package models

import "time"

// ClaimSchemaVersion is stamped on every claim record.
const ClaimSchemaVersion = "1.0"

type ClaimStatus string

const (
	ClaimStatusRunning   ClaimStatus = "running"
	ClaimStatusCompleted ClaimStatus = "completed"
	ClaimStatusFailed    ClaimStatus = "failed"
	ClaimStatusRejected  ClaimStatus = "rejected"
)

// Executor identifies the agent performing an attempt.
type Executor struct {
	ID          string `json:"id"              validate:"required"`
	DisplayName string `json:"displayName"     validate:"required"`
	RunID       string `json:"runId,omitempty"`
}

// ClaimRecord grants one executor exclusive ownership of an attempt. It is
// written once per attempt id and never rewritten.
type ClaimRecord struct {
	SchemaVersion     string      `json:"schemaVersion"               validate:"required"`
	AttemptID         string      `json:"attemptId"                   validate:"required"`
	WorkItemID        string      `json:"workItemId"                  validate:"required"`
	StepKey           string      `json:"stepKey"                     validate:"required"`
	ClaimedAt         time.Time   `json:"claimedAt"                   validate:"required"`
	Executor          Executor    `json:"executor"`
	Status            ClaimStatus `json:"status"                      validate:"required"`
	ArtifactPath      string      `json:"artifactPath"`
	PreviousAttemptID string      `json:"previousAttemptId,omitempty"`
}
