package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/relay/pkg/adapters/redis"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)
	ports.RunExecutionStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithTTL(time.Second))
	ctx := context.Background()

	created, err := store.Create(ctx, &domain.ExecutionRecord{WorkflowID: "wf", Status: domain.StatusRunning})
	require.NoError(t, err)

	listed, err := store.List(ctx, domain.ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	mr.FastForward(2 * time.Second)

	_, err = store.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrExecutionNotFound)

	listed, err = store.List(ctx, domain.ExecutionFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	// The expired id was pruned from the index.
	members, err := mr.ZMembers("relay:execution:index")
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	created, err := store.Create(ctx, &domain.ExecutionRecord{ID: "my-exec", WorkflowID: "wf", Status: domain.StatusRunning})
	require.NoError(t, err)
	assert.Equal(t, "my-exec", created.ID)

	assert.True(t, mr.Exists("custom:app:my-exec"), "expected record key with custom prefix")
	assert.True(t, mr.Exists("custom:app:index"), "expected index with custom prefix")
}
