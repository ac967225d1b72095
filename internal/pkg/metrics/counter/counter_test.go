package counter

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := New(client)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "completed"))
	require.NoError(t, c.Add(ctx, "completed"))
	require.NoError(t, c.Add(ctx, "security_failed"))
	mr.HSet(callbackCountersKey, "garbage", "x")

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"completed": 2, "security_failed": 1}, snap)
}

func TestCounter_EmptySnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	snap, err := New(client).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap)
}
