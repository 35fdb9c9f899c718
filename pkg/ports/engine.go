package ports

import (
	"context"

	"github.com/aretw0/relay/pkg/domain"
)

// StartRequest identifies the execution an engine must run. The record for
// ExecutionID already exists with status running.
type StartRequest struct {
	ExecutionID string
	Workflow    *domain.Workflow
	UserID      string
	Input       map[string]any
}

// ExecutionHandle is returned by ExecutionEngine.Start.
type ExecutionHandle interface {
	// Wait blocks until the execution reaches a terminal state. The outcome is
	// read from the execution record; a non-nil error means the engine itself
	// failed.
	Wait(ctx context.Context) error
}

// ExecutionEngine launches workflow executions asynchronously.
type ExecutionEngine interface {
	Start(ctx context.Context, req StartRequest) (ExecutionHandle, error)
}
