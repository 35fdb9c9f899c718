package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/relay/pkg/adapters/sqlite"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.ExecutionStore = (*sqlite.Store)(nil)

func TestSQLiteStore_Contract(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ports.RunExecutionStoreContract(t, store)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ports.RunExecutionStoreContract(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "relay.db")
	ctx := context.Background()

	first, err := sqlite.New(path)
	require.NoError(t, err)
	rec, err := first.Create(ctx, &domain.ExecutionRecord{WorkflowID: "wf", Status: domain.StatusRunning})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := sqlite.New(path)
	require.NoError(t, err)
	defer second.Close()

	loaded, err := second.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "wf", loaded.WorkflowID)
	assert.Nil(t, loaded.Input)
	assert.Nil(t, loaded.Output)
}
