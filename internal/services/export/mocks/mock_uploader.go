package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, content []byte, filename string) error {
	args := m.Called(ctx, content, filename)
	return args.Error(0)
}
