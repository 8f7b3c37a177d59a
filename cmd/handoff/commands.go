package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/services"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func workflowsCommand() *cli.Command {
	return &cli.Command{
		Name:      "workflows",
		Usage:     "List workflow definitions, or show one by reference (id or id@version)",
		ArgsUsage: "[ref]",
		Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
			if ref := command.Args().First(); ref != "" {
				workflow, err := a.registry.Workflow(ctx, ref)
				if err != nil {
					return services.Classify("workflows", err)
				}

				return a.print(workflow.Definition())
			}

			workflows, err := a.registry.List(ctx)
			if err != nil {
				return services.Classify("workflows", err)
			}

			definitions := make([]models.WorkflowDefinition, 0, len(workflows))
			for _, workflow := range workflows {
				definitions = append(definitions, workflow.Definition())
			}

			return a.print(definitions)
		}),
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Compute which steps of a work item can launch and write the schedule snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "work-item", Aliases: []string{"w"}, Usage: "Work item id", Required: true},
			&cli.StringSliceFlag{Name: "completed", Aliases: []string{"c"}, Usage: "Completed step keys (repeatable or comma separated)"},
		},
		Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
			decision, location, err := a.scheduling.Plan(ctx, command.String("work-item"), splitValues(command.StringSlice("completed")))
			if err != nil {
				return err
			}

			return a.print(struct {
				models.SchedulingDecision
				Location string `json:"location"`
			}{decision, location})
		}),
	}
}

func claimCommand() *cli.Command {
	return &cli.Command{
		Name:  "claim",
		Usage: "Claim an attempt at a step for an executor",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "work-item", Aliases: []string{"w"}, Usage: "Work item id", Required: true},
			&cli.StringFlag{Name: "step", Aliases: []string{"s"}, Usage: "Step key", Required: true},
			&cli.StringFlag{Name: "attempt", Aliases: []string{"a"}, Usage: "Attempt id (a new UUID when omitted)"},
			&cli.StringFlag{Name: "executor-id", Usage: "Executor id", Required: true, Sources: cli.EnvVars("HANDOFF_EXECUTOR_ID")},
			&cli.StringFlag{Name: "executor-name", Usage: "Executor display name (defaults to the executor id)", Sources: cli.EnvVars("HANDOFF_EXECUTOR_NAME")},
			&cli.StringFlag{Name: "run-id", Usage: "Run id of the executor", Sources: cli.EnvVars("HANDOFF_RUN_ID")},
		},
		Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
			attemptID := command.String("attempt")
			if attemptID == "" {
				attemptID = uuid.NewString()
			}

			displayName := command.String("executor-name")
			if displayName == "" {
				displayName = command.String("executor-id")
			}

			claim, err := a.assignment.ClaimAttempt(ctx, services.ClaimRequest{
				AttemptID:  attemptID,
				WorkItemID: command.String("work-item"),
				StepKey:    command.String("step"),
				Executor: models.Executor{
					ID:          command.String("executor-id"),
					DisplayName: displayName,
					RunID:       command.String("run-id"),
				},
			})
			if err != nil {
				return err
			}

			return a.print(claim)
		}),
	}
}

func handoffCommand() *cli.Command {
	return &cli.Command{
		Name:  "handoff",
		Usage: "Append a handoff artifact recording a step transition",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "work-item", Aliases: []string{"w"}, Usage: "Work item id", Required: true},
			&cli.StringFlag{Name: "step", Aliases: []string{"s"}, Usage: "Step key", Required: true},
			&cli.StringFlag{Name: "event", Aliases: []string{"e"}, Usage: "Event type (attempt-started, attempt-completed, attempt-failed, attempt-rejected, gate-approved, gate-rejected, baseline-integration)", Required: true},
			&cli.StringFlag{Name: "attempt", Aliases: []string{"a"}, Usage: "Attempt id", Required: true},
			&cli.StringFlag{Name: "actor", Usage: "Who records the event", Required: true, Sources: cli.EnvVars("HANDOFF_EXECUTOR_ID")},
			&cli.StringFlag{Name: "outcome", Usage: "Outcome summary", Required: true},
			&cli.StringFlag{Name: "next-action", Usage: "Next action for the following executor"},
			&cli.StringFlag{Name: "baseline", Usage: "Baseline integration (pre, post; post for baseline-integration events, pre otherwise)"},
			&cli.StringSliceFlag{Name: "link", Usage: "Related link (repeatable)"},
			&cli.StringFlag{Name: "timestamp", Usage: "RFC 3339 event time (now when omitted)"},
			&cli.StringFlag{Name: "workflow", Usage: "Workflow reference (defaults to the work item's workflow)"},
		},
		Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
			const op = "handoff"

			timestamp, err := parseTimestamp(op, command.String("timestamp"))
			if err != nil {
				return err
			}

			workflow, err := a.handoffWorkflow(ctx, command.String("workflow"), command.String("work-item"))
			if err != nil {
				return err
			}

			step, err := workflow.Step(strings.TrimSpace(command.String("step")))
			if err != nil {
				return services.NewNotFoundError(op, err.Error(), err)
			}

			eventType := models.HandoffEventType(command.String("event"))

			artifact, location, err := a.artifact.WriteHandoffArtifact(ctx, services.HandoffInput{
				WorkItemID:          command.String("work-item"),
				Workflow:            models.WorkflowRef{Name: workflow.Name(), Version: workflow.Version()},
				Step:                models.StepRef{Key: step.Key, Order: step.Order},
				EventType:           eventType,
				AttemptID:           command.String("attempt"),
				Actor:               command.String("actor"),
				Outcome:             command.String("outcome"),
				NextAction:          command.String("next-action"),
				BaselineIntegration: baselineFor(eventType, command.String("baseline")),
				Links:               command.StringSlice("link"),
				Timestamp:           timestamp,
			})
			if err != nil {
				return err
			}

			return a.print(struct {
				models.HandoffArtifact
				Location string `json:"location"`
			}{artifact, location})
		}),
	}
}

// baselineFor returns the explicit baseline flag, or the side of the baseline an event of
// the given type sits on when the flag is omitted.
func baselineFor(eventType models.HandoffEventType, flag string) models.BaselineIntegration {
	if flag != "" {
		return models.BaselineIntegration(flag)
	}

	if eventType == models.EventBaselineIntegration {
		return models.BaselinePost
	}

	return models.BaselinePre
}

// handoffWorkflow resolves the workflow an artifact is recorded against: the explicit
// reference when given, the stored work item's workflow otherwise.
func (a *app) handoffWorkflow(ctx context.Context, ref, workItemID string) (*models.Workflow, error) {
	if ref == "" {
		item, err := a.workItems.Load(ctx, workItemID)
		if err != nil {
			return nil, err
		}

		ref = item.WorkflowID
	}

	workflow, err := a.registry.Workflow(ctx, ref)
	if err != nil {
		return nil, services.Classify("handoff", err)
	}

	return workflow, nil
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show the handoff artifacts of a work item, or the claims of one of its steps",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "work-item", Aliases: []string{"w"}, Usage: "Work item id", Required: true},
			&cli.StringFlag{Name: "claims-for", Usage: "Step key whose claim lineage to show instead"},
		},
		Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
			if stepKey := command.String("claims-for"); stepKey != "" {
				claims, err := a.assignment.ListClaims(ctx, command.String("work-item"), stepKey)
				if err != nil {
					return err
				}

				return a.print(claims)
			}

			artifacts, err := a.artifact.ListHandoffArtifacts(ctx, command.String("work-item"))
			if err != nil {
				return err
			}

			return a.print(artifacts)
		}),
	}
}

func gateCommand() *cli.Command {
	return &cli.Command{
		Name:  "gate",
		Usage: "Record a reviewer decision on a gate; a rejection sends the work item back for rework",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "work-item", Aliases: []string{"w"}, Usage: "Work item id", Required: true},
			&cli.StringFlag{Name: "gate", Aliases: []string{"g"}, Usage: "Gate key", Required: true},
			&cli.StringFlag{Name: "decision", Aliases: []string{"d"}, Usage: "approve or reject (shows the current decision when omitted)"},
			&cli.StringSliceFlag{Name: "reason", Aliases: []string{"r"}, Usage: "Reason for the decision (repeatable)"},
			&cli.StringFlag{Name: "reviewer", Usage: "Reviewer id", Sources: cli.EnvVars("HANDOFF_REVIEWER")},
			&cli.StringFlag{Name: "reentry", Usage: "Step a rejected work item returns to (defaults to the gate key)"},
		},
		Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
			if command.String("decision") == "" {
				decision, err := a.gate.Decision(ctx, command.String("work-item"), command.String("gate"))
				if err != nil {
					return err
				}

				return a.print(decision)
			}

			decision, location, err := a.gate.RecordDecision(ctx, services.GateInput{
				WorkItemID:     command.String("work-item"),
				GateKey:        command.String("gate"),
				Decision:       models.GateOutcome(command.String("decision")),
				Reasons:        command.StringSlice("reason"),
				Reviewer:       command.String("reviewer"),
				ReentryStepKey: command.String("reentry"),
			})
			if err != nil {
				return err
			}

			return a.print(struct {
				models.GateDecision
				Location string `json:"location"`
			}{decision, location})
		}),
	}
}

func workItemCommand() *cli.Command {
	return &cli.Command{
		Name:  "work-item",
		Usage: "Create, inspect and move work items",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a queued work item",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Work item id", Required: true},
					&cli.StringFlag{Name: "workflow", Usage: "Workflow reference (id or id@version)", Required: true},
					&cli.StringFlag{Name: "owner", Usage: "Owner of the work item", Required: true},
					&cli.StringFlag{Name: "step", Usage: "Starting step (defaults to the first step)"},
					&cli.StringSliceFlag{Name: "link", Usage: "Link as rel=href (repeatable)"},
				},
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					links, err := parseLinks(command.StringSlice("link"))
					if err != nil {
						return err
					}

					item, err := a.workItems.Create(ctx, services.CreateWorkItemRequest{
						ID:             command.String("id"),
						WorkflowID:     command.String("workflow"),
						Owner:          command.String("owner"),
						CurrentStepKey: command.String("step"),
						Links:          links,
					})
					if err != nil {
						return err
					}

					return a.print(item)
				}),
			},
			{
				Name:      "show",
				Usage:     "Show a work item",
				ArgsUsage: "<id>",
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					item, err := a.workItems.Load(ctx, command.Args().First())
					if err != nil {
						return err
					}

					return a.print(item)
				}),
			},
			{
				Name:      "advance",
				Usage:     "Move a work item forward to a step",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "step", Usage: "Target step key", Required: true},
				},
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					update, err := a.workItems.AdvanceToStep(ctx, command.Args().First(), command.String("step"))
					if err != nil {
						return err
					}

					return a.print(update)
				}),
			},
			{
				Name:      "rewind",
				Usage:     "Send a work item back to a step for rework",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "step", Usage: "Re-entry step key", Required: true},
					&cli.StringSliceFlag{Name: "reason", Usage: "Rework reason (repeatable)"},
				},
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					update, err := a.workItems.RewindToStep(ctx, command.Args().First(), command.String("step"), command.StringSlice("reason"))
					if err != nil {
						return err
					}

					return a.print(update)
				}),
			},
			{
				Name:      "status",
				Usage:     "Set the status of a work item (blocked, completed, ...)",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "New status", Required: true},
				},
				Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
					update, err := a.workItems.SetStatus(ctx, command.Args().First(), models.WorkItemStatus(command.String("status")))
					if err != nil {
						return err
					}

					return a.print(update)
				}),
			},
		},
	}
}

func parseTimestamp(op, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	timestamp, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, services.NewValidationError(op, fmt.Sprintf("invalid timestamp %q", value), err)
	}

	return timestamp, nil
}

func parseLinks(values []string) ([]models.Link, error) {
	links := make([]models.Link, 0, len(values))

	for _, value := range values {
		rel, href, found := strings.Cut(value, "=")
		if !found || strings.TrimSpace(rel) == "" || strings.TrimSpace(href) == "" {
			return nil, services.NewValidationError("work-item", fmt.Sprintf("invalid link %q, expected rel=href", value), nil)
		}

		links = append(links, models.Link{Rel: strings.TrimSpace(rel), Href: strings.TrimSpace(href)})
	}

	return links, nil
}

// splitValues flattens comma separated flag values and drops blanks.
func splitValues(values []string) []string {
	var out []string

	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}
