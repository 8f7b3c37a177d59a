package file

import (
	"context"
	"path/filepath"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/persistence"
)

// GateRepository stores the latest decision per gate under gates/<workItemId>/.
type GateRepository struct {
	root string
}

// NewGateRepository creates a new gate repository.
func NewGateRepository(root string) *GateRepository {
	return &GateRepository{root: root}
}

func (gr *GateRepository) path(workItemID, gateKey string) string {
	return filepath.Join(gr.root, gatesDir, workItemID, gateKey+".json")
}

// Save writes the decision, replacing any earlier decision on the same gate.
func (gr *GateRepository) Save(_ context.Context, decision models.GateDecision) (string, error) {
	err := validateGateIDs(decision.WorkItemID, decision.GateKey)
	if err != nil {
		return "", persistence.NewRecordError("Save", "gate", decision.GateKey, err)
	}

	filePath := gr.path(decision.WorkItemID, decision.GateKey)

	err = writeDocument(filePath, decision)
	if err != nil {
		return "", persistence.NewRecordError("Save", "gate", decision.GateKey, err)
	}

	return filePath, nil
}

// Get retrieves the latest decision of a gate.
func (gr *GateRepository) Get(_ context.Context, workItemID, gateKey string) (models.GateDecision, error) {
	err := validateGateIDs(workItemID, gateKey)
	if err != nil {
		return models.GateDecision{}, persistence.NewRecordError("Get", "gate", gateKey, err)
	}

	var decision models.GateDecision

	err = readDocument(gr.path(workItemID, gateKey), &decision)
	if err != nil {
		return models.GateDecision{}, persistence.NewRecordError("Get", "gate", gateKey, err)
	}

	return decision, nil
}

func validateGateIDs(workItemID, gateKey string) error {
	err := validateID("work item id", workItemID)
	if err != nil {
		return err
	}

	return validateID("gate key", gateKey)
}
