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

func TestWorkflowStore_Contract(t *testing.T) {
	store, err := memory.NewWorkflowStore()
	require.NoError(t, err)

	ports.RunWorkflowStoreContract(t, store, func(t *testing.T, wf *domain.Workflow) {
		require.NoError(t, store.Put(context.Background(), wf))
	})
}

func TestWorkflowStore_RejectsMissingOwner(t *testing.T) {
	_, err := memory.NewWorkflowStore(&domain.Workflow{ID: "orphan"})
	assert.Error(t, err)
}

func TestWorkflowStore_FindReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store, err := memory.NewWorkflowStore(&domain.Workflow{
		ID:      "wf",
		OwnerID: "alice",
		Nodes:   []domain.Node{{ID: "n1", Type: domain.NodeCommand, Config: map[string]any{"command": "ls"}}},
	})
	require.NoError(t, err)

	wf, err := store.Find(ctx, "wf", "alice")
	require.NoError(t, err)
	wf.Nodes[0].Config["command"] = "rm -rf /"

	again, err := store.Find(ctx, "wf", "alice")
	require.NoError(t, err)
	assert.Equal(t, "ls", again.Nodes[0].Config["command"])
}
