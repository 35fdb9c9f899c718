package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/hashicorp/go-memdb"
)

const workflowTable = "workflow"

var workflowSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		workflowTable: {
			Name: workflowTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"owner": {
					Name:    "owner",
					Indexer: &memdb.StringFieldIndex{Field: "OwnerID"},
				},
				"id_owner": {
					Name:   "id_owner",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "ID"},
							&memdb.StringFieldIndex{Field: "OwnerID"},
						},
					},
				},
			},
		},
	},
}

// WorkflowStore implements ports.WorkflowStore on an indexed in-memory database.
type WorkflowStore struct {
	db *memdb.MemDB
}

// NewWorkflowStore creates an empty store seeded with workflows.
func NewWorkflowStore(workflows ...*domain.Workflow) (*WorkflowStore, error) {
	db, err := memdb.NewMemDB(workflowSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow db: %w", err)
	}
	s := &WorkflowStore{db: db}
	for _, wf := range workflows {
		if err := s.Put(context.Background(), wf); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Put inserts or replaces a workflow.
func (s *WorkflowStore) Put(ctx context.Context, wf *domain.Workflow) error {
	if wf.ID == "" || wf.OwnerID == "" {
		return fmt.Errorf("workflow id and owner are required")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(workflowTable, cloneWorkflow(wf)); err != nil {
		return fmt.Errorf("failed to insert workflow %s: %w", wf.ID, err)
	}
	txn.Commit()
	return nil
}

// Find looks the workflow up by (id, owner).
func (s *WorkflowStore) Find(ctx context.Context, id, ownerID string) (*domain.Workflow, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(workflowTable, "id_owner", id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow %s: %w", id, err)
	}
	if raw == nil {
		return nil, domain.ErrWorkflowNotFound
	}
	return cloneWorkflow(raw.(*domain.Workflow)), nil
}

// List returns workflows owned by ownerID (all when empty), ordered by id.
func (s *WorkflowStore) List(ctx context.Context, ownerID string) ([]*domain.Workflow, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	var (
		it  memdb.ResultIterator
		err error
	)
	if ownerID == "" {
		it, err = txn.Get(workflowTable, "id")
	} else {
		it, err = txn.Get(workflowTable, "owner", ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	var out []*domain.Workflow
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, cloneWorkflow(raw.(*domain.Workflow)))
	}
	slices.SortFunc(out, func(a, b *domain.Workflow) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// memdb objects must never be mutated once inserted.
func cloneWorkflow(wf *domain.Workflow) *domain.Workflow {
	cp := *wf
	cp.Nodes = make([]domain.Node, len(wf.Nodes))
	for i, n := range wf.Nodes {
		n.Config = maps.Clone(n.Config)
		cp.Nodes[i] = n
	}
	cp.Edges = slices.Clone(wf.Edges)
	return &cp
}
