package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dukex/handoff/pkg/events"
	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/otelhelper"
	"github.com/dukex/handoff/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// WorkItemStateUpdate is the position of a work item after a transition.
type WorkItemStateUpdate struct {
	WorkItemID     string                `json:"workItemId"`
	CurrentStepKey string                `json:"currentStepKey"`
	Status         models.WorkItemStatus `json:"status"`
}

// WorkItemGateway is the part of the work item service other services depend on.
type WorkItemGateway interface {
	Load(ctx context.Context, workItemID string) (models.WorkItem, error)
	AdvanceToStep(ctx context.Context, workItemID, stepKey string) (WorkItemStateUpdate, error)
	RewindToStep(ctx context.Context, workItemID, stepKey string, reasons []string) (WorkItemStateUpdate, error)
	CheckStep(ctx context.Context, item models.WorkItem, stepKey string) error
}

// CreateWorkItemRequest describes a new work item. CurrentStepKey defaults to the first step
// of the workflow.
type CreateWorkItemRequest struct {
	ID             string `validate:"required"`
	WorkflowID     string `validate:"required"`
	Owner          string `validate:"required"`
	CurrentStepKey string
	Links          []models.Link
	Metadata       map[string]any
}

// WorkItems owns work item documents. Step keys are checked against the item's workflow
// when a workflow source is configured.
type WorkItems struct {
	workItems persistence.WorkItemRepository
	workflows WorkflowSource
	options
}

// NewWorkItems creates the work item service. workflows may be nil, in which case step keys
// are accepted as given.
func NewWorkItems(workItems persistence.WorkItemRepository, workflows WorkflowSource, opts ...Option) *WorkItems {
	return &WorkItems{
		workItems: workItems,
		workflows: workflows,
		options:   newOptions("work_items", opts),
	}
}

var _ WorkItemGateway = (*WorkItems)(nil)

// Load reads a work item.
func (w *WorkItems) Load(ctx context.Context, workItemID string) (models.WorkItem, error) {
	item, err := w.workItems.Get(ctx, workItemID)
	if err != nil {
		return models.WorkItem{}, Classify("Load", err)
	}

	return item, nil
}

// Create stores a new queued work item.
func (w *WorkItems) Create(ctx context.Context, request CreateWorkItemRequest) (models.WorkItem, error) {
	const op = "Create"

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "work_items.create",
		attribute.String(otelhelper.WorkItemIDKey, request.ID),
		attribute.String(otelhelper.WorkflowIDKey, request.WorkflowID),
	)
	defer span.End()

	item, err := w.create(ctx, op, request)
	if err != nil {
		otelhelper.SetError(span, err)

		return models.WorkItem{}, err
	}

	w.logger.InfoContext(ctx, "Work item created", "workItemId", item.ID, "workflowId", item.WorkflowID, "stepKey", item.CurrentStepKey)

	w.publish(ctx, item.ID, events.WorkItemTransitioned{
		BaseEvent: events.NewBaseEvent(w.publisher.GenerateID(), events.WorkItemTransitionedEvent, item.ID, item.CreatedAt),
		StepKey:   item.CurrentStepKey,
		Status:    item.Status,
	})

	return item, nil
}

func (w *WorkItems) create(ctx context.Context, op string, request CreateWorkItemRequest) (models.WorkItem, error) {
	err := models.ValidateStruct(request)
	if err != nil {
		return models.WorkItem{}, Classify(op, err)
	}

	stepKey := strings.TrimSpace(request.CurrentStepKey)

	if w.workflows != nil {
		workflow, err := w.workflows.Workflow(ctx, request.WorkflowID)
		if err != nil {
			return models.WorkItem{}, Classify(op, err)
		}

		if stepKey == "" {
			stepKey = workflow.StepKeys()[0]
		}

		_, err = workflow.Step(stepKey)
		if err != nil {
			return models.WorkItem{}, Classify(op, err)
		}
	}

	item, err := models.NewWorkItem(request.ID, request.WorkflowID, stepKey, request.Owner, w.clock())
	if err != nil {
		return models.WorkItem{}, Classify(op, err)
	}

	if request.Links != nil {
		item.Links = slices.Clone(request.Links)
	}

	maps.Copy(item.Metadata, request.Metadata)

	err = item.Validate()
	if err != nil {
		return models.WorkItem{}, Classify(op, err)
	}

	err = w.workItems.Create(ctx, item)
	if err != nil {
		if persistence.IsAlreadyExists(err) {
			return models.WorkItem{}, NewConflictError(op, fmt.Sprintf("work item %s already exists", item.ID), err)
		}

		return models.WorkItem{}, Classify(op, err)
	}

	return item, nil
}

// AdvanceToStep moves a work item forward and marks it in progress.
func (w *WorkItems) AdvanceToStep(ctx context.Context, workItemID, stepKey string) (WorkItemStateUpdate, error) {
	return w.transition(ctx, "AdvanceToStep", workItemID, stepKey, nil, func(item models.WorkItem, at time.Time) (models.WorkItem, error) {
		return item.AdvanceToStep(stepKey, at)
	})
}

// RewindToStep sends a work item back to stepKey for rework, recording reasons in its metadata.
func (w *WorkItems) RewindToStep(ctx context.Context, workItemID, stepKey string, reasons []string) (WorkItemStateUpdate, error) {
	return w.transition(ctx, "RewindToStep", workItemID, stepKey, reasons, func(item models.WorkItem, at time.Time) (models.WorkItem, error) {
		return item.RewindToStep(stepKey, reasons, at)
	})
}

// SetStatus changes the status of a work item without moving it.
func (w *WorkItems) SetStatus(ctx context.Context, workItemID string, status models.WorkItemStatus) (WorkItemStateUpdate, error) {
	return w.transition(ctx, "SetStatus", workItemID, "", nil, func(item models.WorkItem, at time.Time) (models.WorkItem, error) {
		return item.WithStatus(status, at)
	})
}

type transitionFunc func(item models.WorkItem, at time.Time) (models.WorkItem, error)

func (w *WorkItems) transition(ctx context.Context, op, workItemID, stepKey string, reasons []string, apply transitionFunc) (WorkItemStateUpdate, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "work_items."+strings.ToLower(op),
		attribute.String(otelhelper.WorkItemIDKey, workItemID),
		attribute.String(otelhelper.StepKeyKey, stepKey),
	)
	defer span.End()

	item, err := w.workItems.Get(ctx, workItemID)
	if err != nil {
		err = Classify(op, err)
		otelhelper.SetError(span, err)

		return WorkItemStateUpdate{}, err
	}

	if stepKey != "" {
		err = w.checkStep(ctx, item, stepKey)
		if err != nil {
			err = Classify(op, err)
			otelhelper.SetError(span, err)

			return WorkItemStateUpdate{}, err
		}
	}

	updated, err := apply(item, w.clock())
	if err != nil {
		err = Classify(op, err)
		otelhelper.SetError(span, err)
		w.logger.WarnContext(ctx, "Work item transition rejected", "workItemId", workItemID, "operation", op, "error", err)

		return WorkItemStateUpdate{}, err
	}

	err = w.workItems.Save(ctx, updated)
	if err != nil {
		err = Classify(op, err)
		otelhelper.SetError(span, err)

		return WorkItemStateUpdate{}, err
	}

	w.logger.InfoContext(ctx, "Work item transitioned",
		"workItemId", updated.ID,
		"operation", op,
		"stepKey", updated.CurrentStepKey,
		"previousStatus", item.Status,
		"status", updated.Status,
	)

	w.publish(ctx, updated.ID, events.WorkItemTransitioned{
		BaseEvent:      events.NewBaseEvent(w.publisher.GenerateID(), events.WorkItemTransitionedEvent, updated.ID, updated.UpdatedAt),
		StepKey:        updated.CurrentStepKey,
		PreviousStatus: item.Status,
		Status:         updated.Status,
		Reasons:        reasons,
	})

	return WorkItemStateUpdate{
		WorkItemID:     updated.ID,
		CurrentStepKey: updated.CurrentStepKey,
		Status:         updated.Status,
	}, nil
}

// CheckStep reports whether stepKey belongs to the workflow of item, without moving it.
func (w *WorkItems) CheckStep(ctx context.Context, item models.WorkItem, stepKey string) error {
	err := w.checkStep(ctx, item, stepKey)
	if err != nil {
		return Classify("CheckStep", err)
	}

	return nil
}

func (w *WorkItems) checkStep(ctx context.Context, item models.WorkItem, stepKey string) error {
	if w.workflows == nil {
		return nil
	}

	workflow, err := w.workflows.Workflow(ctx, item.WorkflowID)
	if err != nil {
		return err
	}

	_, err = workflow.Step(stepKey)

	return err
}
