package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deliveryWorkflow = `id: delivery
name: Delivery
version: "1"
steps:
  - key: phase-setup
    order: 1
    exitCriteria: [repo bootstrapped]
    responsibleRole: dev
  - key: phase-models
    order: 2
    parallelizable: true
    exitCriteria: [models done]
    responsibleRole: dev
    gateKey: phase-models
  - key: phase-tests
    order: 2
    parallelizable: true
    exitCriteria: [tests written]
    responsibleRole: dev
`

type harness struct {
	t            *testing.T
	artifactsDir string
	workflowsDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	t.Setenv("DATABASE_URL", "")
	t.Setenv("EVENT_BUS_TYPE", "none")
	t.Setenv("HANDOFF_CONFIG", "")

	h := &harness{t: t, artifactsDir: t.TempDir(), workflowsDir: t.TempDir()}

	require.NoError(t, os.WriteFile(filepath.Join(h.workflowsDir, "delivery.yaml"), []byte(deliveryWorkflow), 0o600))

	return h
}

func (h *harness) run(args ...string) ([]byte, error) {
	h.t.Helper()

	var out bytes.Buffer

	command := newCommand()
	command.Writer = &out
	command.ErrWriter = io.Discard

	base := []string{"handoff", "--artifacts-dir", h.artifactsDir, "--workflows-dir", h.workflowsDir, "--log-level", "error"}
	err := command.Run(h.t.Context(), append(base, args...))

	return out.Bytes(), err
}

func (h *harness) mustRun(target any, args ...string) {
	h.t.Helper()

	out, err := h.run(args...)
	require.NoError(h.t, err)
	require.NoError(h.t, json.Unmarshal(out, target), string(out))
}

func TestWorkflowsCommand(t *testing.T) {
	h := newHarness(t)

	var definitions []models.WorkflowDefinition
	h.mustRun(&definitions, "workflows")
	require.Len(t, definitions, 1)
	assert.Equal(t, "delivery", definitions[0].ID)
	assert.Len(t, definitions[0].Steps, 3)

	var definition models.WorkflowDefinition
	h.mustRun(&definition, "workflows", "delivery@1")
	assert.Equal(t, "Delivery", definition.Name)

	_, err := h.run("workflows", "unknown")
	assert.Equal(t, services.ExitNotFound, services.ExitCode(err))
}

func TestEndToEnd(t *testing.T) {
	h := newHarness(t)

	var item models.WorkItem
	h.mustRun(&item, "work-item", "create", "--id", "wi-1", "--workflow", "delivery", "--owner", "alice", "--link", "issue=https://example.com/1")
	assert.Equal(t, models.WorkItemStatusQueued, item.Status)
	assert.Equal(t, "phase-setup", item.CurrentStepKey)
	assert.Equal(t, []models.Link{{Rel: "issue", Href: "https://example.com/1"}}, item.Links)

	var decision models.SchedulingDecision
	h.mustRun(&decision, "schedule", "-w", "wi-1")
	assert.Equal(t, []string{"phase-setup", "phase-models", "phase-tests"}, decision.LaunchOrder)
	assert.Equal(t, []string{"phase-setup"}, decision.ReadyKeys())
	assert.FileExists(t, filepath.Join(h.artifactsDir, "schedule", "wi-1.json"))

	h.mustRun(&decision, "schedule", "-w", "wi-1", "--completed", "phase-setup")
	assert.Equal(t, []string{"phase-setup", "phase-models", "phase-tests"}, decision.LaunchOrder)
	assert.Equal(t, []string{"phase-models", "phase-tests"}, decision.ReadyKeys())

	var claim models.ClaimRecord
	h.mustRun(&claim, "claim", "-w", "wi-1", "-s", "phase-setup", "--attempt", "att-1", "--executor-id", "agent-7")
	assert.Equal(t, "att-1", claim.AttemptID)
	assert.Equal(t, "agent-7", claim.Executor.DisplayName)
	assert.FileExists(t, filepath.Join(h.artifactsDir, "claims", "att-1.json"))

	_, err := h.run("claim", "-w", "wi-1", "-s", "phase-setup", "--attempt", "att-1", "--executor-id", "agent-8")
	assert.Equal(t, services.ExitConflict, services.ExitCode(err))

	var minted models.ClaimRecord
	h.mustRun(&minted, "claim", "-w", "wi-1", "-s", "phase-setup", "--executor-id", "agent-7")
	assert.NotEmpty(t, minted.AttemptID)
	assert.Equal(t, "att-1", minted.PreviousAttemptID)

	var artifact struct {
		models.HandoffArtifact
		Location string `json:"location"`
	}
	h.mustRun(&artifact, "handoff", "-w", "wi-1", "-s", "phase-setup", "-e", "attempt-completed", "-a", "att-1",
		"--actor", "agent-7", "--outcome", "bootstrapped", "--timestamp", "2025-09-19T15:45:00.123Z")
	assert.Equal(t, models.WorkflowRef{Name: "Delivery", Version: "1"}, artifact.Workflow)
	assert.Equal(t, 1, artifact.Step.Order)
	assert.Equal(t, models.BaselinePre, artifact.BaselineIntegration)
	assert.Equal(t, filepath.Join(h.artifactsDir, "handoff", "2025-09-19T15-45-00.123Z-wi-1-phase-setup-att-1.json"), artifact.Location)

	h.mustRun(&artifact, "handoff", "-w", "wi-1", "-s", "phase-setup", "-e", "baseline-integration", "-a", "att-1",
		"--actor", "agent-7", "--outcome", "merged", "--timestamp", "2025-09-19T15:50:00.000Z")
	assert.Equal(t, models.BaselinePost, artifact.BaselineIntegration)

	var history []models.HandoffArtifact
	h.mustRun(&history, "history", "-w", "wi-1")
	require.Len(t, history, 2)
	assert.Equal(t, models.EventAttemptCompleted, history[0].EventType)
	assert.Equal(t, models.EventBaselineIntegration, history[1].EventType)

	var lineage []models.ClaimRecord
	h.mustRun(&lineage, "history", "-w", "wi-1", "--claims-for", "phase-setup")
	assert.Len(t, lineage, 2)

	var update services.WorkItemStateUpdate
	h.mustRun(&update, "work-item", "advance", "wi-1", "--step", "phase-models")
	assert.Equal(t, models.WorkItemStatusInProgress, update.Status)

	var gate models.GateDecision
	h.mustRun(&gate, "gate", "-w", "wi-1", "-g", "phase-models", "-d", "reject", "-r", "missing tests", "--reviewer", "bob")
	assert.Equal(t, models.GateReject, gate.Decision)

	h.mustRun(&item, "work-item", "show", "wi-1")
	assert.Equal(t, models.WorkItemStatusRework, item.Status)
	assert.Equal(t, "phase-models", item.CurrentStepKey)

	h.mustRun(&gate, "gate", "-w", "wi-1", "-g", "phase-models")
	assert.Equal(t, "bob", gate.Reviewer)

	h.mustRun(&update, "work-item", "status", "wi-1", "--status", "completed")
	assert.Equal(t, models.WorkItemStatusCompleted, update.Status)

	_, err = h.run("work-item", "advance", "wi-1", "--step", "phase-tests")
	assert.Equal(t, services.ExitConflict, services.ExitCode(err))
}

func TestExitCodes(t *testing.T) {
	h := newHarness(t)

	var item models.WorkItem
	h.mustRun(&item, "work-item", "create", "--id", "wi-1", "--workflow", "delivery", "--owner", "alice")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{
			name: "reject without reasons",
			args: []string{"gate", "-w", "wi-1", "-g", "phase-models", "-d", "reject", "--reviewer", "bob"},
			want: services.ExitValidation,
		},
		{
			name: "unknown event type fails the artifact schema",
			args: []string{"handoff", "-w", "wi-1", "-s", "phase-setup", "-e", "attempt-paused", "-a", "att-1", "--actor", "agent-7", "--outcome", "ok"},
			want: services.ExitInvariant,
		},
		{
			name: "bad timestamp",
			args: []string{"handoff", "-w", "wi-1", "-s", "phase-setup", "-e", "attempt-started", "-a", "att-1", "--actor", "agent-7", "--outcome", "ok", "--timestamp", "yesterday"},
			want: services.ExitValidation,
		},
		{
			name: "unknown step",
			args: []string{"handoff", "-w", "wi-1", "-s", "phase-deploy", "-e", "attempt-started", "-a", "att-1", "--actor", "agent-7", "--outcome", "ok"},
			want: services.ExitNotFound,
		},
		{
			name: "unknown work item",
			args: []string{"work-item", "show", "wi-404"},
			want: services.ExitNotFound,
		},
		{
			name: "duplicate work item",
			args: []string{"work-item", "create", "--id", "wi-1", "--workflow", "delivery", "--owner", "alice"},
			want: services.ExitConflict,
		},
		{
			name: "malformed link",
			args: []string{"work-item", "create", "--id", "wi-2", "--workflow", "delivery", "--owner", "alice", "--link", "nohref"},
			want: services.ExitValidation,
		},
		{
			name: "unsupported database",
			args: []string{"--database-url", "mongodb://localhost", "history", "-w", "wi-1"},
			want: services.ExitValidation,
		},
		{
			name: "watch without a bus",
			args: []string{"watch"},
			want: services.ExitValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.run(tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.want, services.ExitCode(err), err.Error())
		})
	}
}

func TestSplitValues(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitValues([]string{"a, b", " ", "c"}))
	assert.Nil(t, splitValues(nil))
}
