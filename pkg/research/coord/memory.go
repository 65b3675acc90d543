package coord

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// MemoryCoordinator serves single-process deployments without Redis.
type MemoryCoordinator struct {
	cache *cache.Cache
}

func NewMemoryCoordinator() *MemoryCoordinator {
	return &MemoryCoordinator{cache: cache.New(cache.NoExpiration, 10*time.Minute)}
}

func (c *MemoryCoordinator) AcquireRun(ctx context.Context, runId uuid.UUID, ttl time.Duration) (bool, error) {
	if err := c.cache.Add(lockKey(runId), true, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *MemoryCoordinator) ReleaseRun(ctx context.Context, runId uuid.UUID) error {
	c.cache.Delete(lockKey(runId))
	return nil
}

func (c *MemoryCoordinator) RequestCancel(ctx context.Context, runId uuid.UUID) error {
	c.cache.Set(cancelKey(runId), true, cancelFlagTTL)
	return nil
}

func (c *MemoryCoordinator) IsCancelRequested(ctx context.Context, runId uuid.UUID) (bool, error) {
	_, found := c.cache.Get(cancelKey(runId))
	return found, nil
}
