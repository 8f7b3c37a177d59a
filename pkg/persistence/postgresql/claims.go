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

// ClaimRepository handles the claims table.
type ClaimRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewClaimRepository creates a new claim repository.
func NewClaimRepository(db *sql.DB, logger *slog.Logger) *ClaimRepository {
	return &ClaimRepository{db: db, logger: logger}
}

// Locate returns the row reference of a claim.
func (cr *ClaimRepository) Locate(attemptID string) string {
	return "claims/" + attemptID
}

// Create inserts the claim. The attempt id primary key makes concurrent claims of the same
// attempt fail with persistence.ErrAlreadyExists.
func (cr *ClaimRepository) Create(ctx context.Context, claim models.ClaimRecord) error {
	document, err := json.Marshal(claim)
	if err != nil {
		return persistence.NewRecordError("Create", "claim", claim.AttemptID, fmt.Errorf("failed to marshal claim: %w", err))
	}

	query := `
		INSERT INTO claims (attempt_id, work_item_id, step_key, claimed_at, document)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = cr.db.ExecContext(ctx, query, claim.AttemptID, claim.WorkItemID, claim.StepKey, claim.ClaimedAt, document)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewRecordError("Create", "claim", claim.AttemptID, persistence.ErrAlreadyExists)
		}

		return persistence.NewRecordError("Create", "claim", claim.AttemptID, fmt.Errorf("failed to insert claim: %w", err))
	}

	return nil
}

// Get retrieves a claim by attempt id.
func (cr *ClaimRepository) Get(ctx context.Context, attemptID string) (models.ClaimRecord, error) {
	var claim models.ClaimRecord

	err := getDocument(ctx, cr.db, &claim, `SELECT document FROM claims WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return models.ClaimRecord{}, persistence.NewRecordError("Get", "claim", attemptID, err)
	}

	return claim, nil
}

// ListByStep returns the claims of a (workItemId, stepKey) pair ordered by claimed_at.
func (cr *ClaimRepository) ListByStep(ctx context.Context, workItemID, stepKey string) ([]models.ClaimRecord, error) {
	query := `
		SELECT document FROM claims
		WHERE work_item_id = $1 AND step_key = $2
		ORDER BY claimed_at, attempt_id
	`

	claims, err := queryDocuments[models.ClaimRecord](ctx, cr.db, cr.logger, query, workItemID, stepKey)
	if err != nil {
		return nil, persistence.NewRecordError("ListByStep", "claim", "", err)
	}

	return claims, nil
}
