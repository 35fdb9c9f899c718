package ports

import (
	"context"

	"github.com/aretw0/relay/pkg/domain"
)

// ExecutionStore persists execution records.
// Implementations must support concurrent Create/Update keyed by record id.
type ExecutionStore interface {
	// Create persists a new record. It assigns an id when record.ID is empty and a
	// creation timestamp when CreatedAt is zero, and returns the stored record.
	Create(ctx context.Context, record *domain.ExecutionRecord) (*domain.ExecutionRecord, error)

	// FindByID returns domain.ErrExecutionNotFound if the record does not exist.
	FindByID(ctx context.Context, id string) (*domain.ExecutionRecord, error)

	// Update applies a partial write. It returns domain.ErrExecutionNotFound for
	// unknown ids.
	Update(ctx context.Context, id string, update domain.ExecutionUpdate) error

	// List returns records matching filter, newest first.
	List(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionRecord, error)
}

// WorkflowStore gives read access to workflow definitions.
type WorkflowStore interface {
	// Find returns domain.ErrWorkflowNotFound when the workflow does not exist or
	// is owned by someone other than ownerID.
	Find(ctx context.Context, id, ownerID string) (*domain.Workflow, error)

	// List returns the workflows owned by ownerID, or all workflows when ownerID is empty.
	List(ctx context.Context, ownerID string) ([]*domain.Workflow, error)
}

// IntegrationValidator checks that every integration a workflow references is
// usable by its owner. Invalid workflows yield an error matching domain.ErrValidation.
type IntegrationValidator interface {
	Validate(ctx context.Context, nodes []domain.Node, ownerID string) error
}
