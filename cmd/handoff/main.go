package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/handoff/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func main() {
	err := newCommand().Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(services.ExitCode(err))
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "handoff",
		EnableShellCompletion: true,
		Usage:                 "Schedule, claim and audit the steps of workflow-driven work items",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the project config (defaults to ./handoff.yaml when present)",
				Sources: cli.EnvVars("HANDOFF_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "artifacts-dir",
				Usage:   "Directory holding claims, handoff artifacts, gates, work items and schedules",
				Sources: cli.EnvVars("HANDOFF_ARTIFACTS_DIR"),
			},
			&cli.StringFlag{
				Name:    "workflows-dir",
				Usage:   "Directory holding workflow definitions (.yaml, .yml, .json)",
				Sources: cli.EnvVars("HANDOFF_WORKFLOWS_DIR"),
			},
			&cli.StringFlag{
				Name:    "schema",
				Usage:   "JSON Schema handoff artifacts are validated against (built-in schema when empty)",
				Sources: cli.EnvVars("HANDOFF_SCHEMA"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Storage backend URL (file://, postgres://, redis://); files under the artifacts dir when empty",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (none, gochannel, kafka)",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Commands: []*cli.Command{
			workflowsCommand(),
			scheduleCommand(),
			claimCommand(),
			handoffCommand(),
			historyCommand(),
			gateCommand(),
			workItemCommand(),
			watchCommand(),
		},
	}
}
