package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunExecutionStoreContract(t, store)
}

func TestMemoryStore_CopyOnRead(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	created, err := store.Create(ctx, &domain.ExecutionRecord{
		WorkflowID: "wf",
		Status:     domain.StatusRunning,
		Input:      map[string]any{"k": "v"},
	})
	require.NoError(t, err)

	created.Input["k"] = "mutated"
	created.Status = domain.StatusSuccess

	loaded, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "v", loaded.Input["k"])
	assert.Equal(t, domain.StatusRunning, loaded.Status)
}

func TestMemoryStore_CopyOnReadIsDeep(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	input := domain.MergeMeta(map[string]any{"repo": map[string]any{"branch": "main"}}, domain.RunWorkflowMeta{
		Path: domain.NewExecutionPath("parent", "child"),
	})
	created, err := store.Create(ctx, &domain.ExecutionRecord{WorkflowID: "child", Status: domain.StatusRunning, Input: input})
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, created.ID, domain.ExecutionUpdate{Output: map[string]any{"files": []any{"a.go"}}}))

	first, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	first.Input["repo"].(map[string]any)["branch"] = "mutated"
	first.Input[domain.RunWorkflowMetaKey].(map[string]any)["parentWorkflowId"] = "mutated"
	first.Output.(map[string]any)["files"].([]any)[0] = "mutated"

	second, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "main", second.Input["repo"].(map[string]any)["branch"])
	assert.Equal(t, "", second.Input[domain.RunWorkflowMetaKey].(map[string]any)["parentWorkflowId"])
	assert.Equal(t, []any{"a.go"}, second.Output.(map[string]any)["files"])
}
