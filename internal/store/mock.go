package store

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
)

// MockBattleStore is a mock implementation of BattleStore for testing.
type MockBattleStore struct {
	mock.Mock
}

// Name is the mock implementation of the Name method.
func (m *MockBattleStore) Name() string {
	return m.Called().String(0)
}

// SaveBattles is the mock implementation of the SaveBattles method.
func (m *MockBattleStore) SaveBattles(ctx context.Context, runID uuid.UUID, battles []crawler.Battle) (int, error) {
	args := m.Called(ctx, runID, battles)
	return args.Int(0), args.Error(1)
}

// Close is the mock implementation of the Close method.
func (m *MockBattleStore) Close() error {
	return m.Called().Error(0) //nolint:wrapcheck
}

// MockBlobStore is a mock implementation of BlobStore for testing.
type MockBlobStore struct {
	mock.Mock
}

// PutObject is the mock implementation of the PutObject method.
func (m *MockBlobStore) PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	args := m.Called(ctx, path, contentType, r)
	return args.String(0), args.Error(1)
}

// MockRunRepository is a mock implementation of RunRepository for testing.
type MockRunRepository struct {
	mock.Mock
}

// StartRun is the mock implementation of the StartRun method.
func (m *MockRunRepository) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	return m.Called(ctx, runID, startedAt).Error(0) //nolint:wrapcheck
}

// FinishRun is the mock implementation of the FinishRun method.
func (m *MockRunRepository) FinishRun(ctx context.Context, run Run) error {
	return m.Called(ctx, run).Error(0) //nolint:wrapcheck
}

// GetRun is the mock implementation of the GetRun method.
func (m *MockRunRepository) GetRun(ctx context.Context, runID uuid.UUID) (Run, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(Run), args.Error(1)
}
