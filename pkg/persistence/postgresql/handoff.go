package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/persistence"
)

// HandoffRepository is the append-only handoff_artifacts log. Appends for the same
// (workItemId, stepKey) pair are serialized across processes with a transaction-scoped
// advisory lock.
type HandoffRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewHandoffRepository creates a new handoff repository.
func NewHandoffRepository(db *sql.DB, logger *slog.Logger) *HandoffRepository {
	return &HandoffRepository{db: db, logger: logger}
}

// Append locks the pair, runs check against its history and inserts the artifact in the
// same transaction.
func (hr *HandoffRepository) Append(ctx context.Context, artifact models.HandoffArtifact, check persistence.HistoryCheck) (string, error) {
	name := "handoff/" + artifact.FileName()

	document, err := json.Marshal(artifact)
	if err != nil {
		return "", persistence.NewRecordError("Append", "handoff", name, fmt.Errorf("failed to marshal artifact: %w", err))
	}

	transaction, err := hr.db.BeginTx(ctx, nil)
	if err != nil {
		return "", persistence.NewRecordError("Append", "handoff", name, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	_, err = transaction.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, artifact.WorkItemID+"/"+artifact.Step.Key)
	if err != nil {
		return "", persistence.NewRecordError("Append", "handoff", name, fmt.Errorf("failed to lock history: %w", err))
	}

	history, err := queryDocuments[models.HandoffArtifact](ctx, transaction, hr.logger, `
		SELECT document FROM handoff_artifacts
		WHERE work_item_id = $1 AND step_key = $2
		ORDER BY recorded_at, id
	`, artifact.WorkItemID, artifact.Step.Key)
	if err != nil {
		return "", persistence.NewRecordError("Append", "handoff", name, err)
	}

	if check != nil {
		err = check(history)
		if err != nil {
			return "", err
		}
	}

	_, err = transaction.ExecContext(ctx, `
		INSERT INTO handoff_artifacts (name, work_item_id, step_key, attempt_id, event_type, recorded_at, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, name, artifact.WorkItemID, artifact.Step.Key, artifact.AttemptID, string(artifact.EventType), artifact.Timestamp, document)
	if err != nil {
		if isUniqueViolation(err) {
			return "", persistence.NewRecordError("Append", "handoff", name, persistence.ErrAlreadyExists)
		}

		return "", persistence.NewRecordError("Append", "handoff", name, fmt.Errorf("failed to insert artifact: %w", err))
	}

	err = transaction.Commit()
	if err != nil {
		return "", persistence.NewRecordError("Append", "handoff", name, fmt.Errorf("failed to commit artifact: %w", err))
	}

	return name, nil
}

// ListByWorkItem returns the artifacts of a work item ordered by timestamp.
func (hr *HandoffRepository) ListByWorkItem(ctx context.Context, workItemID string) ([]models.HandoffArtifact, error) {
	artifacts, err := queryDocuments[models.HandoffArtifact](ctx, hr.db, hr.logger, `
		SELECT document FROM handoff_artifacts
		WHERE work_item_id = $1
		ORDER BY recorded_at, id
	`, workItemID)
	if err != nil {
		return nil, persistence.NewRecordError("ListByWorkItem", "handoff", "", err)
	}

	return artifacts, nil
}

// ListByStep returns the history of a (workItemId, stepKey) pair ordered by timestamp.
func (hr *HandoffRepository) ListByStep(ctx context.Context, workItemID, stepKey string) ([]models.HandoffArtifact, error) {
	artifacts, err := queryDocuments[models.HandoffArtifact](ctx, hr.db, hr.logger, `
		SELECT document FROM handoff_artifacts
		WHERE work_item_id = $1 AND step_key = $2
		ORDER BY recorded_at, id
	`, workItemID, stepKey)
	if err != nil {
		return nil, persistence.NewRecordError("ListByStep", "handoff", "", err)
	}

	return artifacts, nil
}
