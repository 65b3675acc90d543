package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"homehub-be/pkg/research/coord"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCoordinator(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping integration test: REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx := context.Background()
	require.NoError(t, rdb.Ping(ctx).Err())

	first := coord.NewRedisCoordinator(rdb)
	second := coord.NewRedisCoordinator(rdb)
	runId := uuid.New()

	ok, err := first.AcquireRun(ctx, runId, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.AcquireRun(ctx, runId, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a second worker must not own the same run")

	require.NoError(t, first.ReleaseRun(ctx, runId))
	ok, err = second.AcquireRun(ctx, runId, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.ReleaseRun(ctx, runId))

	requested, err := first.IsCancelRequested(ctx, runId)
	require.NoError(t, err)
	assert.False(t, requested)

	require.NoError(t, second.RequestCancel(ctx, runId))
	requested, err = first.IsCancelRequested(ctx, runId)
	require.NoError(t, err)
	assert.True(t, requested)
}
