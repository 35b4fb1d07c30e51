package services

import (
	"context"

	"github.com/EO-DataHub/eodhp-directory-services/internal/metadata"
)

// Directory runs a dispatched operation.
type Directory interface {
	Handle(ctx context.Context, op metadata.Operation, call metadata.Call) (interface{}, error)
}

// Service contains all shared dependencies for handlers.
type Service struct {
	Directory Directory
	Nodename  string
}
