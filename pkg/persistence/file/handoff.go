package file

import (
	"cmp"
	"context"
	"path/filepath"
	"slices"
	"sync"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/persistence"
)

// HandoffRepository is the append-only handoff log under handoff/. Appends for the same
// (workItemId, stepKey) pair are serialized within the process.
type HandoffRepository struct {
	root  string
	locks sync.Map // map[string]*sync.Mutex
}

// NewHandoffRepository creates a new handoff repository.
func NewHandoffRepository(root string) *HandoffRepository {
	return &HandoffRepository{root: root}
}

// Append runs check against the pair's history and writes the artifact as a new file.
func (hr *HandoffRepository) Append(ctx context.Context, artifact models.HandoffArtifact, check persistence.HistoryCheck) (string, error) {
	for kind, id := range map[string]string{
		"work item id": artifact.WorkItemID,
		"step key":     artifact.Step.Key,
		"attempt id":   artifact.AttemptID,
	} {
		err := validateID(kind, id)
		if err != nil {
			return "", persistence.NewRecordError("Append", "handoff", artifact.AttemptID, err)
		}
	}

	unlock := hr.lock(artifact.WorkItemID, artifact.Step.Key)
	defer unlock()

	history, err := hr.ListByStep(ctx, artifact.WorkItemID, artifact.Step.Key)
	if err != nil {
		return "", err
	}

	if check != nil {
		err = check(history)
		if err != nil {
			return "", err
		}
	}

	filePath := filepath.Join(hr.root, handoffDir, artifact.FileName())

	err = createDocument(filePath, artifact)
	if err != nil {
		return "", persistence.NewRecordError("Append", "handoff", artifact.FileName(), err)
	}

	return filePath, nil
}

// ListByWorkItem returns the artifacts of a work item ordered by timestamp.
func (hr *HandoffRepository) ListByWorkItem(_ context.Context, workItemID string) ([]models.HandoffArtifact, error) {
	return hr.scan("ListByWorkItem", func(artifact models.HandoffArtifact) bool {
		return artifact.WorkItemID == workItemID
	})
}

// ListByStep returns the history of a (workItemId, stepKey) pair ordered by timestamp.
func (hr *HandoffRepository) ListByStep(_ context.Context, workItemID, stepKey string) ([]models.HandoffArtifact, error) {
	return hr.scan("ListByStep", func(artifact models.HandoffArtifact) bool {
		return artifact.WorkItemID == workItemID && artifact.Step.Key == stepKey
	})
}

func (hr *HandoffRepository) scan(op string, keep func(models.HandoffArtifact) bool) ([]models.HandoffArtifact, error) {
	files, err := jsonFiles(filepath.Join(hr.root, handoffDir))
	if err != nil {
		return nil, persistence.NewRecordError(op, "handoff", "", err)
	}

	artifacts := make([]models.HandoffArtifact, 0)

	for _, file := range files {
		var artifact models.HandoffArtifact

		err := readDocument(file, &artifact)
		if err != nil {
			return nil, persistence.NewRecordError(op, "handoff", filepath.Base(file), err)
		}

		if keep(artifact) {
			artifacts = append(artifacts, artifact)
		}
	}

	slices.SortStableFunc(artifacts, func(a, b models.HandoffArtifact) int {
		return cmp.Compare(a.Timestamp.UnixNano(), b.Timestamp.UnixNano())
	})

	return artifacts, nil
}

func (hr *HandoffRepository) lock(workItemID, stepKey string) func() {
	value, _ := hr.locks.LoadOrStore(workItemID+"\x00"+stepKey, &sync.Mutex{})
	mutex := value.(*sync.Mutex)
	mutex.Lock()

	return mutex.Unlock
}
