package redis_test

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/persistence"
	"github.com/dukex/handoff/pkg/persistence/file"
	handoffredis "github.com/dukex/handoff/pkg/persistence/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var redisURL string

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		panic("Failed to start Redis container: " + err.Error())
	}

	host, err := container.Host(ctx)
	if err != nil {
		panic("Failed to get Redis host: " + err.Error())
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		panic("Failed to get Redis port: " + err.Error())
	}

	redisURL = fmt.Sprintf("redis://%s:%s/0", host, port.Port())

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		panic("Failed to terminate Redis container: " + err.Error())
	}

	os.Exit(code)
}

func setup(t *testing.T) *handoffredis.Persistence {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := handoffredis.NewPersistence(t.Context(), logger, redisURL, file.NewPersistence(t.TempDir()))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, p.Close(context.Background()))
	})

	return p
}

func claim(attemptID, stepKey string, at time.Time) models.ClaimRecord {
	return models.ClaimRecord{
		SchemaVersion: models.ClaimSchemaVersion,
		AttemptID:     attemptID,
		WorkItemID:    "wi-" + stepKey,
		StepKey:       stepKey,
		ClaimedAt:     at,
		Executor:      models.Executor{ID: "agent-7", DisplayName: "Agent Seven"},
		Status:        models.ClaimStatusRunning,
	}
}

func TestClaimRepository_CreateIsExclusive(t *testing.T) {
	p := setup(t)
	claims := p.ClaimRepository()
	attemptID := "exclusive-" + t.Name()
	at := time.Date(2025, 9, 19, 15, 0, 0, 0, time.UTC)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := claims.Create(t.Context(), claim(attemptID, "exclusive", at))

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
	assert.Equal(t, 9, conflicts)

	stored, err := claims.Get(t.Context(), attemptID)
	require.NoError(t, err)
	assert.True(t, at.Equal(stored.ClaimedAt))
	assert.Equal(t, "redis://handoff:claims:"+attemptID, claims.Locate(attemptID))

	_, err = claims.Get(t.Context(), "never-claimed")
	assert.True(t, persistence.IsNotFound(err))
}

func TestClaimRepository_ListByStep(t *testing.T) {
	p := setup(t)
	claims := p.ClaimRepository()
	at := time.Date(2025, 9, 19, 15, 0, 0, 0, time.UTC)
	step := "lineage-" + fmt.Sprint(time.Now().UnixNano())

	require.NoError(t, claims.Create(t.Context(), claim(step+"-2", step, at.Add(time.Minute))))
	require.NoError(t, claims.Create(t.Context(), claim(step+"-1", step, at)))
	require.NoError(t, claims.Create(t.Context(), claim(step+"-other", step+"-other", at)))

	lineage, err := claims.ListByStep(t.Context(), "wi-"+step, step)
	require.NoError(t, err)
	require.Len(t, lineage, 2)
	assert.Equal(t, step+"-1", lineage[0].AttemptID)
	assert.Equal(t, step+"-2", lineage[1].AttemptID)

	empty, err := claims.ListByStep(t.Context(), "wi-none", "none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPersistence_DelegatesOtherRecords(t *testing.T) {
	p := setup(t)

	require.NoError(t, p.HealthCheck(t.Context()))

	item, err := models.NewWorkItem("wi-1", "delivery", "phase-setup", "alice", time.Now())
	require.NoError(t, err)
	require.NoError(t, p.WorkItemRepository().Create(t.Context(), item))

	loaded, err := p.WorkItemRepository().Get(t.Context(), "wi-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.Owner)
}

func TestNewPersistence_InvalidURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	_, err := handoffredis.NewPersistence(t.Context(), logger, "http://not-redis", file.NewPersistence(t.TempDir()))
	require.Error(t, err)
}
