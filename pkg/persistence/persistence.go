// Package persistence provides the storage abstraction for claims, handoff artifacts,
// gate decisions, work items and schedule snapshots.
package persistence

import (
	"context"

	"github.com/dukex/handoff/pkg/models"
)

// ClaimRepository is the exclusive claim ledger for attempts.
type ClaimRepository interface {
	// Create stores a claim only if no claim exists for its attempt id. It must be
	// atomic and return ErrAlreadyExists when the attempt is already claimed.
	Create(ctx context.Context, claim models.ClaimRecord) error
	Get(ctx context.Context, attemptID string) (models.ClaimRecord, error)
	// ListByStep returns the claims of a (workItemID, stepKey) pair ordered by ClaimedAt.
	ListByStep(ctx context.Context, workItemID, stepKey string) ([]models.ClaimRecord, error)
	// Locate returns where the claim for attemptID lives (file path, key or row reference).
	Locate(attemptID string) string
}

// HistoryCheck inspects the existing history of a (workItemId, stepKey) pair, ordered by
// timestamp, and returns an error to veto the append.
type HistoryCheck func(history []models.HandoffArtifact) error

// HandoffRepository is the append-only handoff event log.
type HandoffRepository interface {
	// Append loads the history of the artifact's (workItemId, stepKey) pair, runs check and
	// persists the artifact only if check passes. Appends for the same pair are serialized.
	// It returns the location of the stored artifact.
	Append(ctx context.Context, artifact models.HandoffArtifact, check HistoryCheck) (string, error)
	ListByWorkItem(ctx context.Context, workItemID string) ([]models.HandoffArtifact, error)
	ListByStep(ctx context.Context, workItemID, stepKey string) ([]models.HandoffArtifact, error)
}

type WorkItemRepository interface {
	Get(ctx context.Context, id string) (models.WorkItem, error)
	// Create stores a new work item and returns ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, item models.WorkItem) error
	Save(ctx context.Context, item models.WorkItem) error
}

type GateRepository interface {
	// Save overwrites any previous decision for the same (workItemId, gateKey).
	Save(ctx context.Context, decision models.GateDecision) (string, error)
	Get(ctx context.Context, workItemID, gateKey string) (models.GateDecision, error)
}

type ScheduleRepository interface {
	Save(ctx context.Context, decision models.SchedulingDecision) (string, error)
	Get(ctx context.Context, workItemID string) (models.SchedulingDecision, error)
}

// Persistence bundles the repositories of one storage backend.
type Persistence interface {
	ClaimRepository() ClaimRepository
	HandoffRepository() HandoffRepository
	WorkItemRepository() WorkItemRepository
	GateRepository() GateRepository
	ScheduleRepository() ScheduleRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
