package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/relay/pkg/adapters/file"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.ExecutionStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunExecutionStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_ListMissingDirectory(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "does-not-exist"))

	recs, err := store.List(context.Background(), domain.ExecutionFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	rec, err := store.Create(ctx, &domain.ExecutionRecord{WorkflowID: "wf", Status: domain.StatusRunning})
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, rec.ID, domain.ExecutionUpdate{Status: domain.StatusSuccess}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, rec.ID+".json", entries[0].Name())
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	store := file.New(t.TempDir())

	_, err := store.FindByID(context.Background(), "../etc/passwd")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrExecutionNotFound)
}
