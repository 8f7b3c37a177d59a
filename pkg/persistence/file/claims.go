package file

import (
	"cmp"
	"context"
	"path/filepath"
	"slices"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/persistence"
)

// ClaimRepository stores one claim document per attempt under claims/.
type ClaimRepository struct {
	root string
}

// NewClaimRepository creates a new claim repository.
func NewClaimRepository(root string) *ClaimRepository {
	return &ClaimRepository{root: root}
}

// Locate returns the claim file path of an attempt.
func (cr *ClaimRepository) Locate(attemptID string) string {
	return filepath.Join(cr.root, claimsDir, attemptID+".json")
}

// Create writes the claim with an exclusive create, so two concurrent claimers of the
// same attempt cannot both succeed.
func (cr *ClaimRepository) Create(_ context.Context, claim models.ClaimRecord) error {
	err := validateID("attempt id", claim.AttemptID)
	if err != nil {
		return persistence.NewRecordError("Create", "claim", claim.AttemptID, err)
	}

	err = createDocument(cr.Locate(claim.AttemptID), claim)
	if err != nil {
		return persistence.NewRecordError("Create", "claim", claim.AttemptID, err)
	}

	return nil
}

// Get retrieves a claim by attempt id.
func (cr *ClaimRepository) Get(_ context.Context, attemptID string) (models.ClaimRecord, error) {
	err := validateID("attempt id", attemptID)
	if err != nil {
		return models.ClaimRecord{}, persistence.NewRecordError("Get", "claim", attemptID, err)
	}

	var claim models.ClaimRecord

	err = readDocument(cr.Locate(attemptID), &claim)
	if err != nil {
		return models.ClaimRecord{}, persistence.NewRecordError("Get", "claim", attemptID, err)
	}

	return claim, nil
}

// ListByStep scans every claim document and keeps the ones of the given pair.
// Unreadable documents are skipped.
func (cr *ClaimRepository) ListByStep(_ context.Context, workItemID, stepKey string) ([]models.ClaimRecord, error) {
	files, err := jsonFiles(filepath.Join(cr.root, claimsDir))
	if err != nil {
		return nil, persistence.NewRecordError("ListByStep", "claim", "", err)
	}

	claims := make([]models.ClaimRecord, 0)

	for _, file := range files {
		var claim models.ClaimRecord

		if readDocument(file, &claim) != nil {
			continue
		}

		if claim.WorkItemID == workItemID && claim.StepKey == stepKey {
			claims = append(claims, claim)
		}
	}

	slices.SortFunc(claims, compareClaims)

	return claims, nil
}

func compareClaims(a, b models.ClaimRecord) int {
	return cmp.Or(a.ClaimedAt.Compare(b.ClaimedAt), cmp.Compare(a.AttemptID, b.AttemptID))
}
