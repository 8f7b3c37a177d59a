package models

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// WorkItemStatus is the lifecycle state of a work item.
type WorkItemStatus string

const (
	WorkItemStatusQueued     WorkItemStatus = "queued"
	WorkItemStatusInProgress WorkItemStatus = "in-progress"
	WorkItemStatusBlocked    WorkItemStatus = "blocked"
	WorkItemStatusRework     WorkItemStatus = "rework"
	WorkItemStatusCompleted  WorkItemStatus = "completed" // terminal
)

const (
	// MetadataLastReworkReasons holds the reasons of the latest rewind.
	MetadataLastReworkReasons = "lastReworkReasons"
	// MetadataLastReworkAt holds the RFC 3339 time of the latest rewind.
	MetadataLastReworkAt = "lastReworkAt"
)

// Link is a typed reference from a work item or artifact to an external resource.
type Link struct {
	Rel  string `json:"rel"  validate:"required" yaml:"rel"`
	Href string `json:"href" validate:"required" yaml:"href"`
}

// WorkItem is one unit of work traversing a workflow. Its transition methods never
// mutate the receiver; they return an updated copy with a bumped UpdatedAt.
type WorkItem struct {
	ID             string         `json:"id"                 validate:"required"`
	WorkflowID     string         `json:"workflowId"         validate:"required"`
	Status         WorkItemStatus `json:"status"             validate:"required,oneof=queued in-progress blocked rework completed"`
	CurrentStepKey string         `json:"currentStepKey"     validate:"required"`
	Owner          string         `json:"owner"              validate:"required"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	Links          []Link         `json:"links,omitempty"    validate:"omitempty,dive"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewWorkItem creates a queued work item positioned at its first step.
func NewWorkItem(id, workflowID, firstStepKey, owner string, createdAt time.Time) (WorkItem, error) {
	item := WorkItem{
		ID:             strings.TrimSpace(id),
		WorkflowID:     strings.TrimSpace(workflowID),
		Status:         WorkItemStatusQueued,
		CurrentStepKey: strings.TrimSpace(firstStepKey),
		Owner:          strings.TrimSpace(owner),
		CreatedAt:      createdAt.UTC(),
		UpdatedAt:      createdAt.UTC(),
		Links:          []Link{},
		Metadata:       map[string]any{},
	}

	err := item.Validate()
	if err != nil {
		return WorkItem{}, err
	}

	return item, nil
}

func (w WorkItem) Validate() error {
	err := ValidateStruct(w)
	if err != nil {
		return fmt.Errorf("work item %s: %w", w.ID, err)
	}

	return nil
}

// WorkflowRef splits WorkflowID of the form "<id>@<version>". The version is
// empty when the reference does not pin one.
func (w WorkItem) WorkflowRef() (id string, version string) {
	id, version, _ = strings.Cut(w.WorkflowID, "@")

	return id, version
}

func (w WorkItem) IsTerminal() bool {
	return w.Status == WorkItemStatusCompleted
}

// ReworkReasons returns the reasons recorded by the latest rewind, if any.
func (w WorkItem) ReworkReasons() []string {
	switch reasons := w.Metadata[MetadataLastReworkReasons].(type) {
	case []string:
		return slices.Clone(reasons)
	case []any:
		out := make([]string, 0, len(reasons))
		for _, reason := range reasons {
			if text, ok := reason.(string); ok {
				out = append(out, text)
			}
		}

		return out
	default:
		return nil
	}
}

// AdvanceToStep moves the item forward to stepKey and marks it in progress.
func (w WorkItem) AdvanceToStep(stepKey string, at time.Time) (WorkItem, error) {
	err := w.ensureMutable(stepKey)
	if err != nil {
		return WorkItem{}, err
	}

	next := w.clone()
	next.Status = WorkItemStatusInProgress
	next.CurrentStepKey = stepKey
	next.UpdatedAt = at.UTC()

	return next, nil
}

// RewindToStep sends the item back to stepKey for rework and records why.
func (w WorkItem) RewindToStep(stepKey string, reasons []string, at time.Time) (WorkItem, error) {
	err := w.ensureMutable(stepKey)
	if err != nil {
		return WorkItem{}, err
	}

	next := w.clone()
	next.Status = WorkItemStatusRework
	next.CurrentStepKey = stepKey
	next.UpdatedAt = at.UTC()
	next.Metadata[MetadataLastReworkReasons] = cloneStrings(reasons)
	next.Metadata[MetadataLastReworkAt] = at.UTC().Format(time.RFC3339Nano)

	return next, nil
}

// WithStatus returns a copy carrying status. Leaving the completed state is not allowed.
func (w WorkItem) WithStatus(status WorkItemStatus, at time.Time) (WorkItem, error) {
	if w.IsTerminal() && status != WorkItemStatusCompleted {
		return WorkItem{}, fmt.Errorf("%w: work item %s is %s", ErrInvalidTransition, w.ID, w.Status)
	}

	next := w.clone()
	next.Status = status
	next.UpdatedAt = at.UTC()

	err := next.Validate()
	if err != nil {
		return WorkItem{}, err
	}

	return next, nil
}

func (w WorkItem) ensureMutable(stepKey string) error {
	if strings.TrimSpace(stepKey) == "" {
		return fmt.Errorf("work item %s: %w: step key is required", w.ID, ErrInvalid)
	}

	if w.IsTerminal() {
		return fmt.Errorf("%w: work item %s is %s", ErrInvalidTransition, w.ID, w.Status)
	}

	return nil
}

func (w WorkItem) clone() WorkItem {
	w.Links = slices.Clone(w.Links)

	metadata := make(map[string]any, len(w.Metadata)+2)
	maps.Copy(metadata, w.Metadata)
	w.Metadata = metadata

	return w
}
