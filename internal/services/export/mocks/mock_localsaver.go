package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockLocalSaver struct {
	mock.Mock
}

func (m *MockLocalSaver) Save(ctx context.Context, content []byte, filename string) (string, error) {
	args := m.Called(ctx, content, filename)
	return args.String(0), args.Error(1)
}
