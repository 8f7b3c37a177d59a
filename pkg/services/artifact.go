package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukex/handoff/pkg/events"
	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/otelhelper"
	"github.com/dukex/handoff/pkg/persistence"
	"github.com/dukex/handoff/pkg/schemas"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// HandoffInput is one step transition to record.
type HandoffInput struct {
	WorkItemID          string
	Workflow            models.WorkflowRef
	Step                models.StepRef
	EventType           models.HandoffEventType
	AttemptID           string
	Actor               string
	Outcome             string
	NextAction          string
	BaselineIntegration models.BaselineIntegration
	Links               []string
	// Timestamp defaults to the service clock.
	Timestamp time.Time
}

// Artifact keeps the append-only handoff log. Every artifact is checked against the
// handoff schema and the baseline integration boundary of its step before it is stored.
type Artifact struct {
	handoffs persistence.HandoffRepository
	schema   *gojsonschema.Schema
	options
}

func NewArtifact(handoffs persistence.HandoffRepository, schema *gojsonschema.Schema, opts ...Option) *Artifact {
	return &Artifact{
		handoffs: handoffs,
		schema:   schema,
		options:  newOptions("artifact", opts),
	}
}

// WriteHandoffArtifact appends a handoff artifact and returns it with its location.
func (a *Artifact) WriteHandoffArtifact(ctx context.Context, input HandoffInput) (models.HandoffArtifact, string, error) {
	const op = "WriteHandoffArtifact"

	ctx, span := otelhelper.StartSpan(ctx, a.tracer, "artifact.write_handoff",
		attribute.String(otelhelper.WorkItemIDKey, input.WorkItemID),
		attribute.String(otelhelper.StepKeyKey, input.Step.Key),
		attribute.String(otelhelper.AttemptIDKey, input.AttemptID),
		attribute.String(otelhelper.EventTypeKey, string(input.EventType)),
	)
	defer span.End()

	artifact := a.assemble(input)

	location, err := a.append(ctx, op, artifact)
	if err != nil {
		otelhelper.SetError(span, err)
		a.logger.WarnContext(ctx, "Handoff artifact rejected",
			"workItemId", artifact.WorkItemID,
			"stepKey", artifact.Step.Key,
			"eventType", artifact.EventType,
			"error", err,
		)

		return models.HandoffArtifact{}, "", err
	}

	a.logger.InfoContext(ctx, "Handoff artifact recorded",
		"workItemId", artifact.WorkItemID,
		"stepKey", artifact.Step.Key,
		"attemptId", artifact.AttemptID,
		"eventType", artifact.EventType,
		"location", location,
	)

	a.publish(ctx, artifact.WorkItemID, events.HandoffRecorded{
		BaseEvent: events.NewBaseEvent(a.publisher.GenerateID(), events.HandoffRecordedEvent, artifact.WorkItemID, artifact.Timestamp),
		Artifact:  artifact,
		Location:  location,
	})

	return artifact, location, nil
}

func (a *Artifact) assemble(input HandoffInput) models.HandoffArtifact {
	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = a.clock()
	}

	links := slices.Clone(input.Links)
	if links == nil {
		links = []string{}
	}

	return models.HandoffArtifact{
		SchemaVersion:       models.HandoffSchemaVersion,
		WorkItemID:          strings.TrimSpace(input.WorkItemID),
		Workflow:            input.Workflow,
		Step:                models.StepRef{Key: strings.TrimSpace(input.Step.Key), Order: input.Step.Order},
		EventType:           input.EventType,
		AttemptID:           strings.TrimSpace(input.AttemptID),
		Timestamp:           timestamp.UTC().Truncate(time.Millisecond),
		Actor:               input.Actor,
		Outcome:             input.Outcome,
		NextAction:          input.NextAction,
		BaselineIntegration: input.BaselineIntegration,
		Links:               links,
	}
}

func (a *Artifact) append(ctx context.Context, op string, artifact models.HandoffArtifact) (string, error) {
	location, err := a.handoffs.Append(ctx, artifact, func(history []models.HandoffArtifact) error {
		err := checkBaselineBoundary(history, artifact)
		if err != nil {
			return NewInvariantError(op, err.Error(), err)
		}

		err = schemas.Validate(a.schema, artifact)
		if err != nil {
			return NewInvariantError(op, "handoff artifact invalid: "+err.Error(), err)
		}

		return nil
	})
	if persistence.IsAlreadyExists(err) {
		return "", NewConflictError(op, "handoff artifact "+artifact.FileName()+" already exists: each event of an attempt needs a distinct timestamp", err)
	}

	if err != nil {
		return "", Classify(op, err)
	}

	return location, nil
}

// checkBaselineBoundary rejects re-execution of a step whose output was integrated into the
// baseline unless a revert was recorded after the latest integration.
func checkBaselineBoundary(history []models.HandoffArtifact, candidate models.HandoffArtifact) error {
	var (
		lastBaseline models.HandoffArtifact
		found        bool
	)

	for _, artifact := range history {
		if artifact.EventType == models.EventBaselineIntegration {
			lastBaseline = artifact
			found = true
		}
	}

	if !found || candidate.EventType == models.EventBaselineIntegration || !candidate.ReExecutes() {
		return nil
	}

	for _, artifact := range history {
		if artifact.Timestamp.After(lastBaseline.Timestamp) && artifact.IsRevert() {
			return nil
		}
	}

	return fmt.Errorf("baseline integration boundary: step %s for work item %s requires explicit revert before re-execution",
		candidate.Step.Key, candidate.WorkItemID)
}

// ListHandoffArtifacts returns the artifacts of a work item ordered by timestamp.
func (a *Artifact) ListHandoffArtifacts(ctx context.Context, workItemID string) ([]models.HandoffArtifact, error) {
	artifacts, err := a.handoffs.ListByWorkItem(ctx, workItemID)
	if err != nil {
		return nil, Classify("ListHandoffArtifacts", err)
	}

	return artifacts, nil
}
