package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/handoff/pkg/events"
	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/otelhelper"
	"github.com/dukex/handoff/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// ClaimRequest asks for exclusive ownership of one attempt at a step.
type ClaimRequest struct {
	AttemptID  string          `validate:"required"`
	WorkItemID string          `validate:"required"`
	StepKey    string          `validate:"required"`
	Executor   models.Executor `validate:"required"`
	// ClaimedAt defaults to the service clock.
	ClaimedAt time.Time
}

// Assignment is the claim ledger for attempts. A claim is permanent: retries use a new
// attempt id and are chained to the previous attempt of the same step.
type Assignment struct {
	claims persistence.ClaimRepository
	options
}

func NewAssignment(claims persistence.ClaimRepository, opts ...Option) *Assignment {
	return &Assignment{
		claims:  claims,
		options: newOptions("assignment", opts),
	}
}

// ClaimAttempt records the claim of request.AttemptID. It fails with a conflict when the
// attempt was already claimed, whoever claimed it.
func (a *Assignment) ClaimAttempt(ctx context.Context, request ClaimRequest) (models.ClaimRecord, error) {
	const op = "ClaimAttempt"

	request.AttemptID = strings.TrimSpace(request.AttemptID)

	ctx, span := otelhelper.StartSpan(ctx, a.tracer, "assignment.claim_attempt",
		attribute.String(otelhelper.AttemptIDKey, request.AttemptID),
		attribute.String(otelhelper.WorkItemIDKey, request.WorkItemID),
		attribute.String(otelhelper.StepKeyKey, request.StepKey),
		attribute.String(otelhelper.ExecutorIDKey, request.Executor.ID),
	)
	defer span.End()

	record, err := a.claim(ctx, op, request)
	if err != nil {
		otelhelper.SetError(span, err)
		a.logger.WarnContext(ctx, "Claim rejected", "attemptId", request.AttemptID, "workItemId", request.WorkItemID, "stepKey", request.StepKey, "error", err)

		return models.ClaimRecord{}, err
	}

	a.logger.InfoContext(ctx, "Attempt claimed",
		"attemptId", record.AttemptID,
		"workItemId", record.WorkItemID,
		"stepKey", record.StepKey,
		"executorId", record.Executor.ID,
		"previousAttemptId", record.PreviousAttemptID,
	)

	a.publish(ctx, record.WorkItemID, events.AttemptClaimed{
		BaseEvent: events.NewBaseEvent(a.publisher.GenerateID(), events.AttemptClaimedEvent, record.WorkItemID, record.ClaimedAt),
		Claim:     record,
	})

	return record, nil
}

func (a *Assignment) claim(ctx context.Context, op string, request ClaimRequest) (models.ClaimRecord, error) {
	err := models.ValidateStruct(request)
	if err != nil {
		return models.ClaimRecord{}, Classify(op, err)
	}

	_, err = a.claims.Get(ctx, request.AttemptID)
	if err == nil {
		return models.ClaimRecord{}, alreadyClaimed(op, request.AttemptID, persistence.ErrAlreadyExists)
	}

	if !persistence.IsNotFound(err) {
		return models.ClaimRecord{}, Classify(op, err)
	}

	history, err := a.claims.ListByStep(ctx, request.WorkItemID, request.StepKey)
	if err != nil {
		return models.ClaimRecord{}, Classify(op, err)
	}

	claimedAt := request.ClaimedAt
	if claimedAt.IsZero() {
		claimedAt = a.clock()
	}

	record := models.ClaimRecord{
		SchemaVersion: models.ClaimSchemaVersion,
		AttemptID:     request.AttemptID,
		WorkItemID:    request.WorkItemID,
		StepKey:       request.StepKey,
		ClaimedAt:     claimedAt.UTC(),
		Executor:      request.Executor,
		Status:        models.ClaimStatusRunning,
		ArtifactPath:  a.claims.Locate(request.AttemptID),
	}

	if len(history) > 0 {
		record.PreviousAttemptID = history[len(history)-1].AttemptID
	}

	err = a.claims.Create(ctx, record)
	if err != nil {
		if persistence.IsAlreadyExists(err) {
			return models.ClaimRecord{}, alreadyClaimed(op, request.AttemptID, err)
		}

		return models.ClaimRecord{}, Classify(op, err)
	}

	return record, nil
}

// ListClaims returns the retry lineage of a step, oldest claim first.
func (a *Assignment) ListClaims(ctx context.Context, workItemID, stepKey string) ([]models.ClaimRecord, error) {
	claims, err := a.claims.ListByStep(ctx, workItemID, stepKey)
	if err != nil {
		return nil, Classify("ListClaims", err)
	}

	return claims, nil
}

func alreadyClaimed(op, attemptID string, err error) error {
	return NewConflictError(op, fmt.Sprintf("attempt %s already claimed", attemptID), err)
}
