package postgresql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/persistence"
	"github.com/dukex/handoff/pkg/persistence/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"claims", "handoff_artifacts", "work_items", "gate_decisions", "schedules", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("handoff_test"),
			postgres.WithUsername("handoff"),
			postgres.WithPassword("handoff"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

var baseTime = time.Date(2025, 9, 19, 15, 0, 0, 0, time.UTC)

func claim(attemptID string, at time.Time) models.ClaimRecord {
	return models.ClaimRecord{
		SchemaVersion: models.ClaimSchemaVersion,
		AttemptID:     attemptID,
		WorkItemID:    "wi-1",
		StepKey:       "phase-tests",
		ClaimedAt:     at,
		Executor:      models.Executor{ID: "agent-7", DisplayName: "Agent Seven"},
		Status:        models.ClaimStatusRunning,
		ArtifactPath:  "claims/" + attemptID,
	}
}

func artifact(attemptID string, eventType models.HandoffEventType, at time.Time) models.HandoffArtifact {
	return models.HandoffArtifact{
		SchemaVersion:       models.HandoffSchemaVersion,
		WorkItemID:          "wi-1",
		Workflow:            models.WorkflowRef{Name: "delivery", Version: "1"},
		Step:                models.StepRef{Key: "phase-tests", Order: 2},
		EventType:           eventType,
		AttemptID:           attemptID,
		Timestamp:           at,
		Actor:               "agent-7",
		Outcome:             "ok",
		BaselineIntegration: models.BaselinePre,
		Links:               []string{},
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)

	require.NoError(t, p.HealthCheck(ctx))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"claims", "handoff_artifacts", "work_items", "gate_decisions", "schedules"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestClaimRepository_CreateIsExclusive(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	claims := p.ClaimRepository()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := claims.Create(ctx, claim("att-1", baseTime))

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case persistence.IsAlreadyExists(err):
				conflicts++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, conflicts)

	stored, err := claims.Get(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-7", stored.Executor.ID)
	assert.True(t, baseTime.Equal(stored.ClaimedAt))

	_, err = claims.Get(ctx, "missing")
	assert.True(t, persistence.IsNotFound(err))
}

func TestClaimRepository_ListByStep(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	claims := p.ClaimRepository()

	require.NoError(t, claims.Create(ctx, claim("att-2", baseTime.Add(time.Minute))))
	require.NoError(t, claims.Create(ctx, claim("att-1", baseTime)))

	other := claim("att-3", baseTime)
	other.StepKey = "phase-setup"
	require.NoError(t, claims.Create(ctx, other))

	lineage, err := claims.ListByStep(ctx, "wi-1", "phase-tests")
	require.NoError(t, err)
	require.Len(t, lineage, 2)
	assert.Equal(t, "att-1", lineage[0].AttemptID)
	assert.Equal(t, "att-2", lineage[1].AttemptID)
}

func TestHandoffRepository_AppendRunsCheckAgainstHistory(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	handoffs := p.HandoffRepository()

	location, err := handoffs.Append(ctx, artifact("att-1", models.EventAttemptStarted, baseTime), nil)
	require.NoError(t, err)
	assert.Equal(t, "handoff/2025-09-19T15-00-00.000Z-wi-1-phase-tests-att-1.json", location)

	var seen []models.HandoffArtifact

	_, err = handoffs.Append(ctx, artifact("att-1", models.EventAttemptCompleted, baseTime.Add(time.Minute)), func(history []models.HandoffArtifact) error {
		seen = history

		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, models.EventAttemptStarted, seen[0].EventType)

	veto := errors.New("vetoed")

	_, err = handoffs.Append(ctx, artifact("att-2", models.EventAttemptStarted, baseTime.Add(2*time.Minute)), func([]models.HandoffArtifact) error {
		return veto
	})
	require.ErrorIs(t, err, veto)

	history, err := handoffs.ListByWorkItem(ctx, "wi-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.EventAttemptCompleted, history[1].EventType)

	_, err = handoffs.Append(ctx, artifact("att-1", models.EventAttemptStarted, baseTime), nil)
	assert.True(t, persistence.IsAlreadyExists(err))
}

func TestHandoffRepository_ConcurrentAppendsAreSerialized(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	handoffs := p.HandoffRepository()

	var wg sync.WaitGroup

	sizes := make(chan int, 5)

	for i := range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			candidate := artifact(fmt.Sprintf("att-%d", i), models.EventAttemptStarted, baseTime.Add(time.Duration(i)*time.Second))

			_, err := handoffs.Append(ctx, candidate, func(history []models.HandoffArtifact) error {
				sizes <- len(history)

				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	close(sizes)

	seen := map[int]bool{}
	for size := range sizes {
		seen[size] = true
	}

	assert.Len(t, seen, 5, "every append observes a distinct history length")

	history, err := handoffs.ListByStep(ctx, "wi-1", "phase-tests")
	require.NoError(t, err)
	assert.Len(t, history, 5)
}

func TestDocumentRepositories(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	item, err := models.NewWorkItem("wi-1", "delivery", "phase-setup", "alice", baseTime)
	require.NoError(t, err)

	require.NoError(t, p.WorkItemRepository().Create(ctx, item))
	assert.True(t, persistence.IsAlreadyExists(p.WorkItemRepository().Create(ctx, item)))

	advanced, err := item.AdvanceToStep("phase-tests", baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, p.WorkItemRepository().Save(ctx, advanced))

	loaded, err := p.WorkItemRepository().Get(ctx, "wi-1")
	require.NoError(t, err)
	assert.Equal(t, "phase-tests", loaded.CurrentStepKey)
	assert.Equal(t, models.WorkItemStatusInProgress, loaded.Status)

	decision := models.GateDecision{
		SchemaVersion: models.GateSchemaVersion,
		WorkItemID:    "wi-1",
		GateKey:       "phase-models",
		Decision:      models.GateReject,
		Reasons:       []string{"missing tests"},
		Reviewer:      "bob",
		DecidedAt:     baseTime,
	}

	_, err = p.GateRepository().Save(ctx, decision)
	require.NoError(t, err)

	decision.Decision = models.GateApprove
	decision.Reviewer = "carol"

	location, err := p.GateRepository().Save(ctx, decision)
	require.NoError(t, err)
	assert.Equal(t, "gates/wi-1/phase-models", location)

	stored, err := p.GateRepository().Get(ctx, "wi-1", "phase-models")
	require.NoError(t, err)
	assert.Equal(t, "carol", stored.Reviewer)

	_, err = p.ScheduleRepository().Save(ctx, models.SchedulingDecision{
		WorkItemID:  "wi-1",
		GeneratedAt: baseTime,
		LaunchOrder: []string{"phase-setup"},
		Rationale:   "Ready: phase-setup; Blocked: none",
	})
	require.NoError(t, err)

	snapshot, err := p.ScheduleRepository().Get(ctx, "wi-1")
	require.NoError(t, err)
	assert.Equal(t, "Ready: phase-setup; Blocked: none", snapshot.Rationale)

	_, err = p.ScheduleRepository().Get(ctx, "wi-2")
	assert.True(t, persistence.IsNotFound(err))
}
