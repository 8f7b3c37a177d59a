package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/dukex/handoff/pkg/cmd"
	"github.com/dukex/handoff/pkg/config"
	"github.com/dukex/handoff/pkg/eventbus"
	"github.com/dukex/handoff/pkg/log"
	"github.com/dukex/handoff/pkg/otelhelper"
	"github.com/dukex/handoff/pkg/persistence"
	"github.com/dukex/handoff/pkg/registry"
	"github.com/dukex/handoff/pkg/schemas"
	"github.com/dukex/handoff/pkg/services"
	cli "github.com/urfave/cli/v3"
)

// app is everything a command needs, wired from flags, environment and handoff.yaml.
type app struct {
	logger      *slog.Logger
	out         io.Writer
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	registry    *registry.Registry

	workItems  *services.WorkItems
	assignment *services.Assignment
	artifact   *services.Artifact
	gate       *services.Gate
	scheduling *services.Scheduling

	shutdownTracer func(context.Context) error
}

// setting returns the flag value when set on the command line or in the environment,
// and fallback otherwise.
func setting(command *cli.Command, name, fallback string) string {
	if command.IsSet(name) {
		return command.String(name)
	}

	return fallback
}

func newApp(ctx context.Context, command *cli.Command) (*app, error) {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("handoff")

	project, err := config.LoadProjectConfigOrDefault(command.String("config"))
	if err != nil {
		return nil, services.NewValidationError("config", err.Error(), err)
	}

	artifactsDir := setting(command, "artifacts-dir", project.ArtifactsDir)
	workflowsDir := setting(command, "workflows-dir", project.WorkflowsDir)
	databaseURL := setting(command, "database-url", project.DatabaseURL)

	if err := cmd.ValidateDatabaseURL(databaseURL); err != nil {
		return nil, services.NewValidationError("config", err.Error(), err)
	}

	schema, err := schemas.LoadHandoffArtifact(setting(command, "schema", project.SchemaPath))
	if err != nil {
		return nil, services.NewValidationError("config", err.Error(), err)
	}

	a := &app{
		logger:         logger,
		out:            command.Root().Writer,
		shutdownTracer: func(context.Context) error { return nil },
	}

	tracer := otelhelper.NoopTracer()

	if command.Bool("otel") {
		var shutdown func(context.Context) error

		tracer, shutdown, err = otelhelper.NewTracer(ctx, "handoff")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}

		a.shutdownTracer = shutdown
	}

	a.persistence, err = cmd.NewPersistence(ctx, logger, databaseURL, artifactsDir)
	if err != nil {
		a.close(ctx)

		return nil, fmt.Errorf("failed to initialize persistence: %w", err)
	}

	a.eventBus, err = cmd.NewEventBus(
		setting(command, "event-bus", project.EventBus),
		setting(command, "kafka-brokers", project.KafkaBrokers),
		"handoff",
		logger,
	)
	if err != nil {
		a.close(ctx)

		return nil, err
	}

	a.registry = cmd.NewRegistry(logger, workflowsDir)

	opts := []services.Option{services.WithTracer(tracer), services.WithPublisher(a.eventBus)}

	a.workItems = services.NewWorkItems(a.persistence.WorkItemRepository(), a.registry, opts...)
	a.assignment = services.NewAssignment(a.persistence.ClaimRepository(), opts...)
	a.artifact = services.NewArtifact(a.persistence.HandoffRepository(), schema, opts...)
	a.gate = services.NewGate(a.persistence.GateRepository(), a.workItems, opts...)
	a.scheduling = services.NewScheduling(a.registry, a.persistence.WorkItemRepository(), a.persistence.ScheduleRepository(), opts...)

	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.eventBus != nil {
		if err := a.eventBus.Close(); err != nil {
			a.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}

	if a.persistence != nil {
		if err := a.persistence.Close(ctx); err != nil {
			a.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}

	if err := a.shutdownTracer(ctx); err != nil {
		a.logger.ErrorContext(ctx, "Failed to flush traces", "error", err)
	}
}

// print writes value as indented JSON on the command output.
func (a *app) print(value any) error {
	encoder := json.NewEncoder(a.out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

// withApp wraps a command action with app setup and teardown.
func withApp(action func(ctx context.Context, command *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		a, err := newApp(ctx, command)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		return action(ctx, command, a)
	}
}
