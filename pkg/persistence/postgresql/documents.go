package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/persistence"
)

// WorkItemRepository handles the work_items table.
type WorkItemRepository struct {
	db *sql.DB
}

func NewWorkItemRepository(db *sql.DB) *WorkItemRepository {
	return &WorkItemRepository{db: db}
}

func (wr *WorkItemRepository) Get(ctx context.Context, id string) (models.WorkItem, error) {
	var item models.WorkItem

	err := getDocument(ctx, wr.db, &item, `SELECT document FROM work_items WHERE id = $1`, id)
	if err != nil {
		return models.WorkItem{}, persistence.NewRecordError("Get", "work item", id, err)
	}

	return item, nil
}

// Create inserts a new work item, failing with persistence.ErrAlreadyExists if the id is taken.
func (wr *WorkItemRepository) Create(ctx context.Context, item models.WorkItem) error {
	document, err := json.Marshal(item)
	if err != nil {
		return persistence.NewRecordError("Create", "work item", item.ID, fmt.Errorf("failed to marshal work item: %w", err))
	}

	_, err = wr.db.ExecContext(ctx, `
		INSERT INTO work_items (id, status, document, updated_at) VALUES ($1, $2, $3, $4)
	`, item.ID, string(item.Status), document, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewRecordError("Create", "work item", item.ID, persistence.ErrAlreadyExists)
		}

		return persistence.NewRecordError("Create", "work item", item.ID, fmt.Errorf("failed to insert work item: %w", err))
	}

	return nil
}

// Save upserts the work item.
func (wr *WorkItemRepository) Save(ctx context.Context, item models.WorkItem) error {
	document, err := json.Marshal(item)
	if err != nil {
		return persistence.NewRecordError("Save", "work item", item.ID, fmt.Errorf("failed to marshal work item: %w", err))
	}

	_, err = wr.db.ExecContext(ctx, `
		INSERT INTO work_items (id, status, document, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`, item.ID, string(item.Status), document, item.UpdatedAt)
	if err != nil {
		return persistence.NewRecordError("Save", "work item", item.ID, fmt.Errorf("failed to save work item: %w", err))
	}

	return nil
}

// GateRepository handles the gate_decisions table.
type GateRepository struct {
	db *sql.DB
}

func NewGateRepository(db *sql.DB) *GateRepository {
	return &GateRepository{db: db}
}

// Save replaces any earlier decision on the same gate.
func (gr *GateRepository) Save(ctx context.Context, decision models.GateDecision) (string, error) {
	document, err := json.Marshal(decision)
	if err != nil {
		return "", persistence.NewRecordError("Save", "gate", decision.GateKey, fmt.Errorf("failed to marshal gate decision: %w", err))
	}

	_, err = gr.db.ExecContext(ctx, `
		INSERT INTO gate_decisions (work_item_id, gate_key, document, decided_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (work_item_id, gate_key) DO UPDATE SET
			document = EXCLUDED.document,
			decided_at = EXCLUDED.decided_at
	`, decision.WorkItemID, decision.GateKey, document, decision.DecidedAt)
	if err != nil {
		return "", persistence.NewRecordError("Save", "gate", decision.GateKey, fmt.Errorf("failed to save gate decision: %w", err))
	}

	return "gates/" + decision.WorkItemID + "/" + decision.GateKey, nil
}

func (gr *GateRepository) Get(ctx context.Context, workItemID, gateKey string) (models.GateDecision, error) {
	var decision models.GateDecision

	err := getDocument(ctx, gr.db, &decision, `
		SELECT document FROM gate_decisions WHERE work_item_id = $1 AND gate_key = $2
	`, workItemID, gateKey)
	if err != nil {
		return models.GateDecision{}, persistence.NewRecordError("Get", "gate", gateKey, err)
	}

	return decision, nil
}

// ScheduleRepository handles the schedules table.
type ScheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Save replaces the snapshot of the decision's work item.
func (sr *ScheduleRepository) Save(ctx context.Context, decision models.SchedulingDecision) (string, error) {
	document, err := json.Marshal(decision)
	if err != nil {
		return "", persistence.NewRecordError("Save", "schedule", decision.WorkItemID, fmt.Errorf("failed to marshal schedule: %w", err))
	}

	_, err = sr.db.ExecContext(ctx, `
		INSERT INTO schedules (work_item_id, document, generated_at) VALUES ($1, $2, $3)
		ON CONFLICT (work_item_id) DO UPDATE SET
			document = EXCLUDED.document,
			generated_at = EXCLUDED.generated_at
	`, decision.WorkItemID, document, decision.GeneratedAt)
	if err != nil {
		return "", persistence.NewRecordError("Save", "schedule", decision.WorkItemID, fmt.Errorf("failed to save schedule: %w", err))
	}

	return "schedule/" + decision.WorkItemID, nil
}

func (sr *ScheduleRepository) Get(ctx context.Context, workItemID string) (models.SchedulingDecision, error) {
	var decision models.SchedulingDecision

	err := getDocument(ctx, sr.db, &decision, `SELECT document FROM schedules WHERE work_item_id = $1`, workItemID)
	if err != nil {
		return models.SchedulingDecision{}, persistence.NewRecordError("Get", "schedule", workItemID, err)
	}

	return decision, nil
}
