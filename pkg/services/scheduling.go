package services

import (
	"cmp"
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

const (
	noteSequential     = "Sequential step executes first"
	noteParallelLeader = "Parallel branch leader"
	noteParallelBranch = "Parallel branch"
	rationaleComplete  = "All steps complete"
)

// ScheduleSubject identifies the work item a schedule is computed for.
type ScheduleSubject struct {
	ID             string
	CurrentStepKey string
}

// GenerateSchedule computes which pending steps of workflow may start now and what blocks
// the others. It performs no I/O and returns the same decision for the same inputs.
//
// Only the lowest pending order is launchable. Its candidates are taken in key order: the
// first non-parallelizable candidate runs alone, otherwise every candidate runs as a
// parallel branch.
func GenerateSchedule(workflow *models.Workflow, subject ScheduleSubject, completedSteps []string, now time.Time) models.SchedulingDecision {
	steps := workflow.Steps()

	completed := make(map[string]bool, len(completedSteps))
	for _, key := range completedSteps {
		completed[key] = true
	}

	decision := models.SchedulingDecision{
		WorkItemID:     subject.ID,
		CurrentStepKey: subject.CurrentStepKey,
		GeneratedAt:    now.UTC(),
		LaunchOrder:    workflow.StepKeys(),
		ReadySteps:     []models.ReadyStep{},
		BlockedSteps:   []models.BlockedStep{},
	}

	pending := make([]models.Step, 0, len(steps))

	for _, step := range steps {
		if !completed[step.Key] {
			pending = append(pending, step)
		}
	}

	if len(pending) == 0 {
		decision.Rationale = rationaleComplete

		return decision
	}

	lowestOrder := slices.MinFunc(pending, func(a, b models.Step) int {
		return cmp.Compare(a.Order, b.Order)
	}).Order

	var candidates []models.Step

	for _, step := range pending {
		if step.Order == lowestOrder {
			candidates = append(candidates, step)
		}
	}

	slices.SortFunc(candidates, func(a, b models.Step) int {
		return strings.Compare(a.Key, b.Key)
	})

	decision.ReadySteps = readySteps(candidates)
	decision.BlockedSteps = blockedSteps(pending, candidates, decision.ReadyKeys(), lowestOrder)
	decision.Rationale = rationale(decision)

	return decision
}

func readySteps(candidates []models.Step) []models.ReadyStep {
	for _, step := range candidates {
		if !step.IsParallelizable() {
			return []models.ReadyStep{readyStep(step, noteSequential)}
		}
	}

	ready := make([]models.ReadyStep, 0, len(candidates))

	for i, step := range candidates {
		note := noteParallelBranch
		if i == 0 {
			note = noteParallelLeader
		}

		ready = append(ready, readyStep(step, note))
	}

	return ready
}

func readyStep(step models.Step, note string) models.ReadyStep {
	return models.ReadyStep{
		Key:             step.Key,
		Order:           step.Order,
		Parallelizable:  step.Parallelizable,
		Notes:           []string{note},
		SupportingTasks: step.SupportingTasks,
	}
}

// blockedSteps lists every pending step that is not ready. A step is blocked by the pending
// steps of lower order; a peer of the ready steps is blocked by them. No blocked step is
// reported without blockers while upstream work remains.
func blockedSteps(pending, candidates []models.Step, readyKeys []string, lowestOrder int) []models.BlockedStep {
	blocked := make([]models.BlockedStep, 0, len(pending))

	for _, step := range pending {
		if slices.Contains(readyKeys, step.Key) {
			continue
		}

		var blockers []string

		for _, other := range pending {
			if other.Order < step.Order {
				blockers = append(blockers, other.Key)
			}
		}

		if step.Order == lowestOrder {
			blockers = append(blockers, readyKeys...)
		}

		if len(blockers) == 0 && step.Order > lowestOrder {
			for _, candidate := range candidates {
				blockers = append(blockers, candidate.Key)
			}
		}

		blocked = append(blocked, models.BlockedStep{
			Key:             step.Key,
			Order:           step.Order,
			BlockedBy:       dedupe(blockers),
			SupportingTasks: step.SupportingTasks,
		})
	}

	slices.SortStableFunc(blocked, func(a, b models.BlockedStep) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), strings.Compare(a.Key, b.Key))
	})

	return blocked
}

func rationale(decision models.SchedulingDecision) string {
	ready := strings.Join(decision.ReadyKeys(), ", ")
	if ready == "" {
		ready = "none"
	}

	blocked := strings.Join(decision.BlockedKeys(), ", ")
	if blocked == "" {
		blocked = "none"
	}

	return "Ready: " + ready + "; Blocked: " + blocked
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))

	for _, key := range keys {
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}

	return out
}

// WorkflowSource resolves workflow references such as "delivery" or "delivery@2025.1".
type WorkflowSource interface {
	Workflow(ctx context.Context, ref string) (*models.Workflow, error)
}

// Scheduling plans work items against their workflows and keeps the latest plan as a snapshot.
type Scheduling struct {
	workflows WorkflowSource
	workItems persistence.WorkItemRepository
	schedules persistence.ScheduleRepository
	options
}

func NewScheduling(workflows WorkflowSource, workItems persistence.WorkItemRepository, schedules persistence.ScheduleRepository, opts ...Option) *Scheduling {
	return &Scheduling{
		workflows: workflows,
		workItems: workItems,
		schedules: schedules,
		options:   newOptions("scheduling", opts),
	}
}

// Plan computes the schedule of a stored work item given its completed steps and writes the
// snapshot. It returns the decision and where the snapshot was written.
func (s *Scheduling) Plan(ctx context.Context, workItemID string, completedSteps []string) (models.SchedulingDecision, string, error) {
	const op = "Plan"

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "scheduling.plan", attribute.String(otelhelper.WorkItemIDKey, workItemID))
	defer span.End()

	item, err := s.workItems.Get(ctx, workItemID)
	if err != nil {
		err = Classify(op, err)
		otelhelper.SetError(span, err)

		return models.SchedulingDecision{}, "", err
	}

	workflow, err := s.workflows.Workflow(ctx, item.WorkflowID)
	if err != nil {
		err = Classify(op, err)
		otelhelper.SetError(span, err)

		return models.SchedulingDecision{}, "", err
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, workflow.ID()))

	for _, key := range completedSteps {
		if !workflow.HasStep(key) {
			s.logger.WarnContext(ctx, "Ignoring completed step unknown to workflow", "workItemId", workItemID, "stepKey", key, "workflowId", workflow.ID())
		}
	}

	decision := GenerateSchedule(workflow, ScheduleSubject{ID: item.ID, CurrentStepKey: item.CurrentStepKey}, completedSteps, s.clock())

	location, err := s.schedules.Save(ctx, decision)
	if err != nil {
		err = Classify(op, err)
		otelhelper.SetError(span, err)

		return models.SchedulingDecision{}, "", err
	}

	s.logger.InfoContext(ctx, "Schedule generated", "workItemId", item.ID, "rationale", decision.Rationale)

	s.publish(ctx, item.ID, events.ScheduleGenerated{
		BaseEvent:  events.NewBaseEvent(s.publisher.GenerateID(), events.ScheduleGeneratedEvent, item.ID, decision.GeneratedAt),
		ReadySteps: decision.ReadyKeys(),
		Rationale:  decision.Rationale,
	})

	return decision, location, nil
}
