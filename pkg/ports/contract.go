package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunExecutionStoreContract runs a suite of tests to verify that an ExecutionStore
// implementation adheres to the defined interface contract.
func RunExecutionStoreContract(t *testing.T, store ExecutionStore) {
	ctx := context.Background()
	workflowID := "contract-wf-" + time.Now().Format("20060102150405.000000000")

	newRecord := func(wf string) *domain.ExecutionRecord {
		return &domain.ExecutionRecord{
			WorkflowID: wf,
			UserID:     "user-1",
			Status:     domain.StatusRunning,
			Input:      map[string]any{"foo": "bar"},
		}
	}

	t.Run("Create assigns id and timestamp", func(t *testing.T) {
		created, err := store.Create(ctx, newRecord(workflowID))
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())
		assert.Equal(t, domain.StatusRunning, created.Status)

		loaded, err := store.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, loaded.ID)
		assert.Equal(t, workflowID, loaded.WorkflowID)
		assert.Equal(t, "user-1", loaded.UserID)
		assert.Equal(t, "bar", loaded.Input["foo"])
		assert.Nil(t, loaded.CompletedAt)
		assert.WithinDuration(t, created.CreatedAt, loaded.CreatedAt, time.Millisecond)
	})

	t.Run("Create is not idempotent", func(t *testing.T) {
		a, err := store.Create(ctx, newRecord(workflowID))
		require.NoError(t, err)
		b, err := store.Create(ctx, newRecord(workflowID))
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("FindByID Non-Existent", func(t *testing.T) {
		_, err := store.FindByID(ctx, "non-existent-"+workflowID)
		assert.ErrorIs(t, err, domain.ErrExecutionNotFound)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Update to success", func(t *testing.T) {
		created, err := store.Create(ctx, newRecord(workflowID))
		require.NoError(t, err)

		now := time.Now()
		err = store.Update(ctx, created.ID, domain.ExecutionUpdate{
			Status:      domain.StatusSuccess,
			Output:      map[string]any{"answer": "42"},
			CompletedAt: &now,
		})
		require.NoError(t, err)

		loaded, err := store.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, loaded.Status)
		assert.Equal(t, map[string]any{"answer": "42"}, loaded.Output)
		require.NotNil(t, loaded.CompletedAt)
		assert.WithinDuration(t, now, *loaded.CompletedAt, time.Millisecond)
		assert.Equal(t, "bar", loaded.Input["foo"], "update must not drop the input")
	})

	t.Run("Update to error", func(t *testing.T) {
		created, err := store.Create(ctx, newRecord(workflowID))
		require.NoError(t, err)

		msg := "engine crashed"
		now := time.Now()
		require.NoError(t, store.Update(ctx, created.ID, domain.ExecutionUpdate{
			Status:      domain.StatusError,
			Error:       &msg,
			CompletedAt: &now,
		}))

		loaded, err := store.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusError, loaded.Status)
		assert.Equal(t, "engine crashed", loaded.Error)
	})

	t.Run("Update Non-Existent", func(t *testing.T) {
		err := store.Update(ctx, "non-existent-"+workflowID, domain.ExecutionUpdate{Status: domain.StatusError})
		assert.ErrorIs(t, err, domain.ErrExecutionNotFound)
	})

	t.Run("Meta envelope round trip", func(t *testing.T) {
		rec := newRecord(workflowID)
		rec.Input = domain.MergeMeta(rec.Input, domain.RunWorkflowMeta{
			Path:              domain.NewExecutionPath("root", workflowID),
			ParentExecutionID: "parent-exec",
			ParentWorkflowID:  "root",
		})
		created, err := store.Create(ctx, rec)
		require.NoError(t, err)

		loaded, err := store.FindByID(ctx, created.ID)
		require.NoError(t, err)
		meta, ok := domain.MetaFromInput(loaded.Input)
		require.True(t, ok)
		assert.Equal(t, []string{"root", workflowID}, meta.Path.IDs())
		assert.Equal(t, "parent-exec", meta.ParentExecutionID)
	})

	t.Run("List filters and orders newest first", func(t *testing.T) {
		wf := workflowID + "-list"
		base := time.Now().Add(-time.Hour)
		ids := make([]string, 3)
		for i := range ids {
			rec := newRecord(wf)
			rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			created, err := store.Create(ctx, rec)
			require.NoError(t, err)
			ids[i] = created.ID
		}
		require.NoError(t, store.Update(ctx, ids[1], domain.ExecutionUpdate{Status: domain.StatusSuccess}))

		all, err := store.List(ctx, domain.ExecutionFilter{WorkflowID: wf})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].ID, all[1].ID, all[2].ID})

		done, err := store.List(ctx, domain.ExecutionFilter{WorkflowID: wf, Status: domain.StatusSuccess})
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, ids[1], done[0].ID)

		limited, err := store.List(ctx, domain.ExecutionFilter{WorkflowID: wf, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("Concurrent updates on distinct records", func(t *testing.T) {
		const n = 8
		ids := make([]string, n)
		for i := range ids {
			created, err := store.Create(ctx, newRecord(workflowID+"-concurrent"))
			require.NoError(t, err)
			ids[i] = created.ID
		}

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- store.Update(ctx, id, domain.ExecutionUpdate{
					Status: domain.StatusSuccess,
					Output: fmt.Sprintf("out-%d", i),
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for i, id := range ids {
			loaded, err := store.FindByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusSuccess, loaded.Status)
			assert.Equal(t, fmt.Sprintf("out-%d", i), loaded.Output)
		}
	})
}

// RunWorkflowStoreContract verifies a WorkflowStore. seed must make wf visible
// to the store.
func RunWorkflowStoreContract(t *testing.T, store WorkflowStore, seed func(t *testing.T, wf *domain.Workflow)) {
	ctx := context.Background()

	owned := &domain.Workflow{
		ID:      "report",
		OwnerID: "alice",
		Name:    "Daily report",
		Nodes: []domain.Node{
			{ID: "fetch", Type: domain.NodeCommand, Config: map[string]any{"command": "ls"}},
			{ID: "child", Type: domain.NodeRunWorkflow, Config: map[string]any{"workflowId": "cleanup"}},
		},
		Edges: []domain.Edge{{From: "fetch", To: "child"}},
	}
	other := &domain.Workflow{ID: "cleanup", OwnerID: "bob", Name: "Cleanup"}
	seed(t, owned)
	seed(t, other)

	t.Run("Find owned", func(t *testing.T) {
		wf, err := store.Find(ctx, "report", "alice")
		require.NoError(t, err)
		assert.Equal(t, "Daily report", wf.Name)
		require.Len(t, wf.Nodes, 2)
		assert.Equal(t, domain.NodeRunWorkflow, wf.Nodes[1].Type)
		assert.Equal(t, "cleanup", wf.Nodes[1].Config["workflowId"])
		require.Len(t, wf.Edges, 1)
		assert.Equal(t, "child", wf.Edges[0].To)
	})

	t.Run("Find owned by someone else", func(t *testing.T) {
		_, err := store.Find(ctx, "cleanup", "alice")
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
	})

	t.Run("Find missing", func(t *testing.T) {
		_, err := store.Find(ctx, "missing", "alice")
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("List by owner", func(t *testing.T) {
		mine, err := store.List(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, "report", mine[0].ID)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}
