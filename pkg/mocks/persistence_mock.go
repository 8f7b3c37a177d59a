package mocks

import (
	"context"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkItemRepository is a mock implementation of persistence.WorkItemRepository interface.
type MockWorkItemRepository struct {
	mock.Mock
}

func (m *MockWorkItemRepository) Get(ctx context.Context, id string) (models.WorkItem, error) {
	args := m.Called(ctx, id)

	return args.Get(0).(models.WorkItem), args.Error(1)
}

func (m *MockWorkItemRepository) Create(ctx context.Context, item models.WorkItem) error {
	args := m.Called(ctx, item)

	return args.Error(0)
}

func (m *MockWorkItemRepository) Save(ctx context.Context, item models.WorkItem) error {
	args := m.Called(ctx, item)

	return args.Error(0)
}

// MockGateRepository is a mock implementation of persistence.GateRepository interface.
type MockGateRepository struct {
	mock.Mock
}

func (m *MockGateRepository) Save(ctx context.Context, decision models.GateDecision) (string, error) {
	args := m.Called(ctx, decision)

	return args.String(0), args.Error(1)
}

func (m *MockGateRepository) Get(ctx context.Context, workItemID, gateKey string) (models.GateDecision, error) {
	args := m.Called(ctx, workItemID, gateKey)

	return args.Get(0).(models.GateDecision), args.Error(1)
}

// MockClaimRepository is a mock implementation of persistence.ClaimRepository interface.
type MockClaimRepository struct {
	mock.Mock
}

func (m *MockClaimRepository) Create(ctx context.Context, claim models.ClaimRecord) error {
	args := m.Called(ctx, claim)

	return args.Error(0)
}

func (m *MockClaimRepository) Get(ctx context.Context, attemptID string) (models.ClaimRecord, error) {
	args := m.Called(ctx, attemptID)

	return args.Get(0).(models.ClaimRecord), args.Error(1)
}

func (m *MockClaimRepository) ListByStep(ctx context.Context, workItemID, stepKey string) ([]models.ClaimRecord, error) {
	args := m.Called(ctx, workItemID, stepKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.ClaimRecord), args.Error(1)
}

func (m *MockClaimRepository) Locate(attemptID string) string {
	args := m.Called(attemptID)

	return args.String(0)
}

var (
	_ persistence.WorkItemRepository = (*MockWorkItemRepository)(nil)
	_ persistence.GateRepository     = (*MockGateRepository)(nil)
	_ persistence.ClaimRepository    = (*MockClaimRepository)(nil)
)
