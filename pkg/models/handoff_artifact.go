package models

import (
	"fmt"
	"strings"
	"time"
)

// HandoffSchemaVersion is stamped on every handoff artifact.
const HandoffSchemaVersion = "1.0"

// HandoffEventType names the step transition an artifact records.
type HandoffEventType string

const (
	EventAttemptStarted      HandoffEventType = "attempt-started"
	EventAttemptCompleted    HandoffEventType = "attempt-completed"
	EventAttemptFailed       HandoffEventType = "attempt-failed"
	EventAttemptRejected     HandoffEventType = "attempt-rejected"
	EventGateApproved        HandoffEventType = "gate-approved"
	EventGateRejected        HandoffEventType = "gate-rejected"
	EventBaselineIntegration HandoffEventType = "baseline-integration"
)

// BaselineIntegration tells whether an event happened before or after the
// step's output was merged into the shared baseline.
type BaselineIntegration string

const (
	BaselinePre  BaselineIntegration = "pre"
	BaselinePost BaselineIntegration = "post"
)

type WorkflowRef struct {
	Name    string `json:"name"    validate:"required"`
	Version string `json:"version" validate:"required"`
}

type StepRef struct {
	Key   string `json:"key"   validate:"required"`
	Order int    `json:"order" validate:"min=1"`
}

// HandoffArtifact is one immutable audit event for a step of a work item.
type HandoffArtifact struct {
	SchemaVersion       string              `json:"schemaVersion"       validate:"required"`
	WorkItemID          string              `json:"workItemId"          validate:"required"`
	Workflow            WorkflowRef         `json:"workflow"`
	Step                StepRef             `json:"step"`
	EventType           HandoffEventType    `json:"eventType"           validate:"required,oneof=attempt-started attempt-completed attempt-failed attempt-rejected gate-approved gate-rejected baseline-integration"`
	AttemptID           string              `json:"attemptId"           validate:"required"`
	Timestamp           time.Time           `json:"timestamp"           validate:"required"`
	Actor               string              `json:"actor"               validate:"required"`
	Outcome             string              `json:"outcome"             validate:"required"`
	NextAction          string              `json:"nextAction"`
	BaselineIntegration BaselineIntegration `json:"baselineIntegration" validate:"required,oneof=pre post"`
	Links               []string            `json:"links"`
}

// IsRevert reports whether the event acknowledges a rollback of integrated work.
func (a HandoffArtifact) IsRevert() bool {
	return (a.EventType == EventAttemptRejected || a.EventType == EventAttemptFailed) &&
		a.BaselineIntegration == BaselinePost
}

// ReExecutes reports whether the event would start or land work on the step again.
func (a HandoffArtifact) ReExecutes() bool {
	return a.EventType == EventAttemptStarted || a.EventType == EventAttemptCompleted
}

// FileName is the append-only file name of the artifact. Colons are replaced so the
// name is portable across file systems. The event type is not part of the name, so two
// events of one attempt must carry distinct millisecond timestamps.
func (a HandoffArtifact) FileName() string {
	timestamp := strings.ReplaceAll(a.Timestamp.UTC().Format(TimestampLayout), ":", "-")

	return fmt.Sprintf("%s-%s-%s-%s.json", timestamp, a.WorkItemID, a.Step.Key, a.AttemptID)
}

// TimestampLayout is RFC 3339 with fixed millisecond precision so file names sort by time.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
