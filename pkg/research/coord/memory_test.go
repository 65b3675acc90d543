package coord

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCoordinator_Lock(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCoordinator()
	id := uuid.New()

	ok, err := c.AcquireRun(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireRun(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second worker must not take the run")

	require.NoError(t, c.ReleaseRun(ctx, id))
	ok, err = c.AcquireRun(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCoordinator_LockExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCoordinator()
	id := uuid.New()

	ok, _ := c.AcquireRun(ctx, id, 20*time.Millisecond)
	require.True(t, ok)
	time.Sleep(40 * time.Millisecond)

	ok, err := c.AcquireRun(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCoordinator_Cancel(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCoordinator()
	id := uuid.New()

	requested, err := c.IsCancelRequested(ctx, id)
	require.NoError(t, err)
	assert.False(t, requested)

	require.NoError(t, c.RequestCancel(ctx, id))
	requested, err = c.IsCancelRequested(ctx, id)
	require.NoError(t, err)
	assert.True(t, requested)

	other, _ := c.IsCancelRequested(ctx, uuid.New())
	assert.False(t, other)
}
