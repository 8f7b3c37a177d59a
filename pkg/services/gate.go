package services

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dukex/handoff/pkg/events"
	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/otelhelper"
	"github.com/dukex/handoff/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// GateInput is a reviewer verdict on a gate.
type GateInput struct {
	WorkItemID     string
	GateKey        string
	Decision       models.GateOutcome
	Reasons        []string
	Reviewer       string
	DecidedAt      time.Time
	ReentryStepKey string
}

// Gate records reviewer decisions. A rejection sends the work item back to the re-entry step.
type Gate struct {
	gates     persistence.GateRepository
	workItems WorkItemGateway
	options
}

func NewGate(gates persistence.GateRepository, workItems WorkItemGateway, opts ...Option) *Gate {
	return &Gate{
		gates:     gates,
		workItems: workItems,
		options:   newOptions("gate", opts),
	}
}

// RecordDecision stores the decision, replacing any earlier one on the same gate, and rewinds
// the work item when the gate is rejected.
func (g *Gate) RecordDecision(ctx context.Context, input GateInput) (models.GateDecision, string, error) {
	const op = "RecordDecision"

	ctx, span := otelhelper.StartSpan(ctx, g.tracer, "gate.record_decision",
		attribute.String(otelhelper.WorkItemIDKey, input.WorkItemID),
		attribute.String(otelhelper.GateKeyKey, input.GateKey),
	)
	defer span.End()

	decision, location, err := g.record(ctx, op, input)
	if err != nil {
		otelhelper.SetError(span, err)
		g.logger.WarnContext(ctx, "Gate decision rejected", "workItemId", input.WorkItemID, "gateKey", input.GateKey, "error", err)

		return models.GateDecision{}, "", err
	}

	g.logger.InfoContext(ctx, "Gate decision recorded",
		"workItemId", decision.WorkItemID,
		"gateKey", decision.GateKey,
		"decision", decision.Decision,
		"reviewer", decision.Reviewer,
	)

	g.publish(ctx, decision.WorkItemID, events.GateDecided{
		BaseEvent: events.NewBaseEvent(g.publisher.GenerateID(), events.GateDecidedEvent, decision.WorkItemID, decision.DecidedAt),
		Decision:  decision,
	})

	return decision, location, nil
}

func (g *Gate) record(ctx context.Context, op string, input GateInput) (models.GateDecision, string, error) {
	decidedAt := input.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = g.clock()
	}

	reasons := slices.Clone(input.Reasons)
	if reasons == nil {
		reasons = []string{}
	}

	decision := models.GateDecision{
		SchemaVersion:  models.GateSchemaVersion,
		WorkItemID:     strings.TrimSpace(input.WorkItemID),
		GateKey:        strings.TrimSpace(input.GateKey),
		Decision:       input.Decision,
		Reasons:        reasons,
		Reviewer:       strings.TrimSpace(input.Reviewer),
		DecidedAt:      decidedAt.UTC(),
		ReentryStepKey: strings.TrimSpace(input.ReentryStepKey),
	}

	err := decision.Validate()
	if err != nil {
		return models.GateDecision{}, "", Classify(op, err)
	}

	item, err := g.workItems.Load(ctx, decision.WorkItemID)
	if err != nil {
		return models.GateDecision{}, "", Classify(op, err)
	}

	if decision.Decision == models.GateReject && item.IsTerminal() {
		return models.GateDecision{}, "", NewConflictError(op, "work item "+item.ID+" is "+string(item.Status)+" and cannot be reworked", models.ErrInvalidTransition)
	}

	if decision.Decision == models.GateReject {
		// The re-entry step is resolved before anything is written.
		err = g.workItems.CheckStep(ctx, item, decision.ReentryStep())
		if err != nil {
			return models.GateDecision{}, "", Classify(op, err)
		}
	}

	location, err := g.gates.Save(ctx, decision)
	if err != nil {
		return models.GateDecision{}, "", Classify(op, err)
	}

	if decision.Decision == models.GateReject {
		_, err = g.workItems.RewindToStep(ctx, decision.WorkItemID, decision.ReentryStep(), decision.Reasons)
		if err != nil {
			return models.GateDecision{}, "", Classify(op, err)
		}
	}

	return decision, location, nil
}

// Decision returns the latest decision recorded on a gate.
func (g *Gate) Decision(ctx context.Context, workItemID, gateKey string) (models.GateDecision, error) {
	decision, err := g.gates.Get(ctx, workItemID, gateKey)
	if err != nil {
		return models.GateDecision{}, Classify("Decision", err)
	}

	return decision, nil
}
