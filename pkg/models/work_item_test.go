package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newItem(t *testing.T) WorkItem {
	t.Helper()

	item, err := NewWorkItem("wi-1", "delivery@2025.1", "phase-setup", "alice", created)
	require.NoError(t, err)

	return item
}

func TestNewWorkItem(t *testing.T) {
	item := newItem(t)

	assert.Equal(t, WorkItemStatusQueued, item.Status)
	assert.Equal(t, created, item.CreatedAt)
	assert.Equal(t, created, item.UpdatedAt)

	_, err := NewWorkItem("wi-2", "delivery", "phase-setup", "", created)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "Owner is required")
}

func TestWorkItem_WorkflowRef(t *testing.T) {
	item := newItem(t)

	id, version := item.WorkflowRef()
	assert.Equal(t, "delivery", id)
	assert.Equal(t, "2025.1", version)

	item.WorkflowID = "delivery"
	id, version = item.WorkflowRef()
	assert.Equal(t, "delivery", id)
	assert.Empty(t, version)
}

func TestWorkItem_AdvanceToStep(t *testing.T) {
	item := newItem(t)
	later := created.Add(time.Hour)

	next, err := item.AdvanceToStep("phase-tests", later)
	require.NoError(t, err)

	assert.Equal(t, WorkItemStatusInProgress, next.Status)
	assert.Equal(t, "phase-tests", next.CurrentStepKey)
	assert.Equal(t, later, next.UpdatedAt)
	assert.Equal(t, created, next.CreatedAt)

	assert.Equal(t, WorkItemStatusQueued, item.Status)
	assert.Equal(t, "phase-setup", item.CurrentStepKey)
}

func TestWorkItem_RewindToStep(t *testing.T) {
	item := newItem(t)
	item.Metadata["ticket"] = "OPS-1"
	later := created.Add(2 * time.Hour)

	next, err := item.RewindToStep("phase-setup", []string{"missing fixtures"}, later)
	require.NoError(t, err)

	assert.Equal(t, WorkItemStatusRework, next.Status)
	assert.Equal(t, later, next.UpdatedAt)
	assert.Equal(t, []string{"missing fixtures"}, next.ReworkReasons())
	assert.Equal(t, "OPS-1", next.Metadata["ticket"])
	assert.NotContains(t, item.Metadata, MetadataLastReworkReasons)
}

func TestWorkItem_ReworkReasonsSurviveJSON(t *testing.T) {
	item, err := newItem(t).RewindToStep("phase-setup", []string{"a", "b"}, created)
	require.NoError(t, err)

	payload, err := json.Marshal(item)
	require.NoError(t, err)

	var decoded WorkItem
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, []string{"a", "b"}, decoded.ReworkReasons())
}

func TestWorkItem_CompletedIsTerminal(t *testing.T) {
	item, err := newItem(t).WithStatus(WorkItemStatusCompleted, created)
	require.NoError(t, err)

	_, err = item.AdvanceToStep("phase-tests", created)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = item.RewindToStep("phase-setup", []string{"late"}, created)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = item.WithStatus(WorkItemStatusBlocked, created)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWorkItem_WithStatusRejectsUnknownStatus(t *testing.T) {
	_, err := newItem(t).WithStatus("paused", created)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestWorkItem_AdvanceRequiresStepKey(t *testing.T) {
	_, err := newItem(t).AdvanceToStep(" ", created)
	require.ErrorIs(t, err, ErrInvalid)
}
