// Package loam stores workflow definitions as Markdown documents with YAML
// frontmatter, using the Loam document engine.
package loam

import (
	"cmp"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/relay/pkg/domain"
)

// WorkflowStore adapts a Loam repository to ports.WorkflowStore.
type WorkflowStore struct {
	Repo *loam.TypedRepository[WorkflowMetadata]
}

// New creates a new Loam workflow store.
func New(repo *loam.TypedRepository[WorkflowMetadata]) *WorkflowStore {
	return &WorkflowStore{Repo: repo}
}

// Open initializes a read-only Loam repository at dir and wraps it.
func Open(dir string) (*WorkflowStore, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workflow directory: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init loam repo at %s: %w", absPath, err)
	}
	return New(loam.NewTypedRepository[WorkflowMetadata](repo)), nil
}

// Find loads the document named id. A workflow owned by someone else is
// reported as not found.
func (s *WorkflowStore) Find(ctx context.Context, id, ownerID string) (*domain.Workflow, error) {
	doc, err := s.Repo.Get(ctx, id)
	if err != nil {
		// Loam does not expose a not-found sentinel; tell a missing document
		// apart from a broken one by listing.
		if wf, listErr := s.lookup(ctx, id); listErr == nil && wf == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, id)
		}
		return nil, fmt.Errorf("loam get failed for %s: %w", id, err)
	}

	wf := doc.Data.toDomain(doc.ID, doc.Content)
	if ownerID != "" && wf.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, id)
	}
	return wf, nil
}

func (s *WorkflowStore) lookup(ctx context.Context, id string) (*domain.Workflow, error) {
	all, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, wf := range all {
		if wf.ID == id {
			return wf, nil
		}
	}
	return nil, nil
}

// List returns the workflows owned by ownerID (all when empty), sorted by id.
func (s *WorkflowStore) List(ctx context.Context, ownerID string) ([]*domain.Workflow, error) {
	docs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	out := make([]*domain.Workflow, 0, len(docs))
	for _, doc := range docs {
		wf := doc.Data.toDomain(doc.ID, doc.Content)

		if existingPath, ok := seen[wf.ID]; ok {
			return nil, fmt.Errorf("collision detected: workflow '%s' is defined in both '%s' and '%s'", wf.ID, existingPath, doc.ID)
		}
		seen[wf.ID] = doc.ID

		if ownerID != "" && wf.OwnerID != ownerID {
			continue
		}
		out = append(out, wf)
	}

	slices.SortFunc(out, func(a, b *domain.Workflow) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Save writes wf as a document named after its id.
func (s *WorkflowStore) Save(ctx context.Context, wf *domain.Workflow) error {
	if wf.ID == "" || wf.OwnerID == "" {
		return domain.ValidationError("workflow id and owner are required")
	}
	return s.Repo.Save(ctx, &loam.DocumentModel[WorkflowMetadata]{
		ID:      wf.ID,
		Content: wf.Description,
		Data:    fromDomain(wf),
	})
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
