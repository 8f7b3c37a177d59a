package file

import (
	"context"
	"path/filepath"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/persistence"
)

// ScheduleRepository keeps the latest schedule snapshot per work item under schedule/.
type ScheduleRepository struct {
	root string
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(root string) *ScheduleRepository {
	return &ScheduleRepository{root: root}
}

func (sr *ScheduleRepository) path(workItemID string) string {
	return filepath.Join(sr.root, scheduleDir, workItemID+".json")
}

func (sr *ScheduleRepository) Save(_ context.Context, decision models.SchedulingDecision) (string, error) {
	err := validateID("work item id", decision.WorkItemID)
	if err != nil {
		return "", persistence.NewRecordError("Save", "schedule", decision.WorkItemID, err)
	}

	filePath := sr.path(decision.WorkItemID)

	err = writeDocument(filePath, decision)
	if err != nil {
		return "", persistence.NewRecordError("Save", "schedule", decision.WorkItemID, err)
	}

	return filePath, nil
}

func (sr *ScheduleRepository) Get(_ context.Context, workItemID string) (models.SchedulingDecision, error) {
	err := validateID("work item id", workItemID)
	if err != nil {
		return models.SchedulingDecision{}, persistence.NewRecordError("Get", "schedule", workItemID, err)
	}

	var decision models.SchedulingDecision

	err = readDocument(sr.path(workItemID), &decision)
	if err != nil {
		return models.SchedulingDecision{}, persistence.NewRecordError("Get", "schedule", workItemID, err)
	}

	return decision, nil
}
