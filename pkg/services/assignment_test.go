package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/handoff/pkg/events"
	"github.com/dukex/handoff/pkg/mocks"
	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/persistence"
	"github.com/dukex/handoff/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var executor = models.Executor{ID: "agent-7", DisplayName: "Agent Seven", RunID: "run-42"}

func claimRequest(attemptID string, at time.Time) ClaimRequest {
	return ClaimRequest{
		AttemptID:  attemptID,
		WorkItemID: "wi-1",
		StepKey:    "phase-tests",
		Executor:   executor,
		ClaimedAt:  at,
	}
}

func TestAssignment_ClaimAttempt(t *testing.T) {
	root := t.TempDir()
	service := NewAssignment(file.NewClaimRepository(root))

	record, err := service.ClaimAttempt(t.Context(), claimRequest("att-1", scheduledAt))
	require.NoError(t, err)

	assert.Equal(t, "1.0", record.SchemaVersion)
	assert.Equal(t, models.ClaimStatusRunning, record.Status)
	assert.Equal(t, filepath.Join(root, "claims", "att-1.json"), record.ArtifactPath)
	assert.Equal(t, executor, record.Executor)
	assert.Empty(t, record.PreviousAttemptID)
	assert.FileExists(t, record.ArtifactPath)
}

func TestAssignment_ClaimExclusivity(t *testing.T) {
	service := NewAssignment(file.NewClaimRepository(t.TempDir()))

	_, err := service.ClaimAttempt(t.Context(), claimRequest("att-1", scheduledAt))
	require.NoError(t, err)

	_, err = service.ClaimAttempt(t.Context(), claimRequest("att-1", scheduledAt.Add(time.Minute)))
	require.Error(t, err)
	assert.True(t, IsConflictError(err))
	assert.Contains(t, err.Error(), "already claimed")
}

func TestAssignment_RetryLineage(t *testing.T) {
	service := NewAssignment(file.NewClaimRepository(t.TempDir()))

	first, err := service.ClaimAttempt(t.Context(), claimRequest("att-1", scheduledAt))
	require.NoError(t, err)

	second, err := service.ClaimAttempt(t.Context(), claimRequest("att-2", scheduledAt.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, first.AttemptID, second.PreviousAttemptID)

	third, err := service.ClaimAttempt(t.Context(), claimRequest("att-3", scheduledAt.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, "att-2", third.PreviousAttemptID)

	other := claimRequest("att-4", scheduledAt.Add(3*time.Minute))
	other.StepKey = "phase-setup"
	unrelated, err := service.ClaimAttempt(t.Context(), other)
	require.NoError(t, err)
	assert.Empty(t, unrelated.PreviousAttemptID)

	lineage, err := service.ListClaims(t.Context(), "wi-1", "phase-tests")
	require.NoError(t, err)
	require.Len(t, lineage, 3)
	assert.Equal(t, "att-3", lineage[2].AttemptID)
}

func TestAssignment_ClaimedAtDefaultsToClock(t *testing.T) {
	service := NewAssignment(file.NewClaimRepository(t.TempDir()), WithClock(func() time.Time { return scheduledAt }))

	record, err := service.ClaimAttempt(t.Context(), claimRequest("att-1", time.Time{}))
	require.NoError(t, err)
	assert.Equal(t, scheduledAt, record.ClaimedAt)
}

func TestAssignment_RejectsInvalidRequests(t *testing.T) {
	root := t.TempDir()
	service := NewAssignment(file.NewClaimRepository(root))

	tests := []struct {
		name   string
		mutate func(*ClaimRequest)
	}{
		{"missing attempt", func(r *ClaimRequest) { r.AttemptID = " " }},
		{"missing work item", func(r *ClaimRequest) { r.WorkItemID = "" }},
		{"missing step", func(r *ClaimRequest) { r.StepKey = "" }},
		{"missing executor name", func(r *ClaimRequest) { r.Executor.DisplayName = "" }},
		{"path traversal", func(r *ClaimRequest) { r.AttemptID = "../outside" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := claimRequest("att-1", scheduledAt)
			tt.mutate(&request)

			_, err := service.ClaimAttempt(t.Context(), request)
			require.Error(t, err)
			assert.True(t, IsValidationError(err), err.Error())
		})
	}

	assert.NoDirExists(t, filepath.Join(root, "claims"))
}

func TestAssignment_LostRaceIsAConflict(t *testing.T) {
	claims := &mocks.MockClaimRepository{}
	claims.On("Get", mock.Anything, "att-1").Return(models.ClaimRecord{}, persistence.ErrNotFound)
	claims.On("ListByStep", mock.Anything, "wi-1", "phase-tests").Return([]models.ClaimRecord{}, nil)
	claims.On("Locate", "att-1").Return("claims/att-1.json")
	claims.On("Create", mock.Anything, mock.Anything).Return(persistence.ErrAlreadyExists)

	service := NewAssignment(claims)

	_, err := service.ClaimAttempt(t.Context(), claimRequest("att-1", scheduledAt))
	require.Error(t, err)
	assert.True(t, IsConflictError(err))
	assert.Contains(t, err.Error(), "already claimed")
	claims.AssertExpectations(t)
}

func TestAssignment_PublishesClaim(t *testing.T) {
	publisher := &mocks.MockEventPublisher{}
	publisher.On("GenerateID").Return("evt-1")
	publisher.On("Publish", mock.Anything, "wi-1", mock.MatchedBy(func(event events.AttemptClaimed) bool {
		return event.Claim.AttemptID == "att-1" && event.ID == "evt-1"
	})).Return(nil)

	service := NewAssignment(file.NewClaimRepository(t.TempDir()), WithPublisher(publisher))

	_, err := service.ClaimAttempt(t.Context(), claimRequest("att-1", scheduledAt))
	require.NoError(t, err)
	publisher.AssertExpectations(t)
}
