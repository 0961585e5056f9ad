package mocks

import (
	"context"

	"github.com/BearBump/TrackIntake/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ApplyExport(ctx context.Context, e models.ExportEntry) (bool, error) {
	args := m.Called(ctx, e)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ListExports(ctx context.Context, limit, offset int) ([]*models.ExportEntry, error) {
	args := m.Called(ctx, limit, offset)
	var out []*models.ExportEntry
	if v := args.Get(0); v != nil {
		out = v.([]*models.ExportEntry)
	}
	return out, args.Error(1)
}

func (m *MockRepository) GetExport(ctx context.Context, batchID string) (*models.ExportEntry, bool, error) {
	args := m.Called(ctx, batchID)
	var out *models.ExportEntry
	if v := args.Get(0); v != nil {
		out = v.(*models.ExportEntry)
	}
	return out, args.Bool(1), args.Error(2)
}

func (m *MockRepository) FindBatchesByCode(ctx context.Context, rawCode string) ([]string, error) {
	args := m.Called(ctx, rawCode)
	var out []string
	if v := args.Get(0); v != nil {
		out = v.([]string)
	}
	return out, args.Error(1)
}
