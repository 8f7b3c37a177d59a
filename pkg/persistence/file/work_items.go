package file

import (
	"context"
	"path/filepath"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/persistence"
)

// WorkItemRepository handles work item documents under work-items/.
type WorkItemRepository struct {
	root string
}

// NewWorkItemRepository creates a new work item repository.
func NewWorkItemRepository(root string) *WorkItemRepository {
	return &WorkItemRepository{root: root}
}

func (wr *WorkItemRepository) path(id string) string {
	return filepath.Join(wr.root, workItemsDir, id+".json")
}

// Get retrieves a work item by its ID from the file system.
func (wr *WorkItemRepository) Get(_ context.Context, id string) (models.WorkItem, error) {
	err := validateID("work item id", id)
	if err != nil {
		return models.WorkItem{}, persistence.NewRecordError("Get", "work item", id, err)
	}

	var item models.WorkItem

	err = readDocument(wr.path(id), &item)
	if err != nil {
		return models.WorkItem{}, persistence.NewRecordError("Get", "work item", id, err)
	}

	return item, nil
}

// Create stores a new work item, failing if one with the same ID exists.
func (wr *WorkItemRepository) Create(_ context.Context, item models.WorkItem) error {
	err := validateID("work item id", item.ID)
	if err != nil {
		return persistence.NewRecordError("Create", "work item", item.ID, err)
	}

	err = createDocument(wr.path(item.ID), item)
	if err != nil {
		return persistence.NewRecordError("Create", "work item", item.ID, err)
	}

	return nil
}

// Save overwrites the work item document.
func (wr *WorkItemRepository) Save(_ context.Context, item models.WorkItem) error {
	err := validateID("work item id", item.ID)
	if err != nil {
		return persistence.NewRecordError("Save", "work item", item.ID, err)
	}

	err = writeDocument(wr.path(item.ID), item)
	if err != nil {
		return persistence.NewRecordError("Save", "work item", item.ID, err)
	}

	return nil
}
