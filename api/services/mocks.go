package services

import (
	"context"

	"github.com/EO-DataHub/eodhp-directory-services/internal/metadata"
	"github.com/stretchr/testify/mock"
)

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Handle(ctx context.Context, op metadata.Operation, call metadata.Call) (interface{}, error) {
	args := m.Called(ctx, op, call)
	return args.Get(0), args.Error(1)
}
