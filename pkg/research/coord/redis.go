package coord

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCoordinator struct {
	rdb   *redis.Client
	owner string
}

func NewRedisCoordinator(rdb *redis.Client) *RedisCoordinator {
	return &RedisCoordinator{rdb: rdb, owner: uuid.NewString()}
}

func (c *RedisCoordinator) AcquireRun(ctx context.Context, runId uuid.UUID, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKey(runId), c.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	return ok, nil
}

func (c *RedisCoordinator) ReleaseRun(ctx context.Context, runId uuid.UUID) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{lockKey(runId)}, c.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

func (c *RedisCoordinator) RequestCancel(ctx context.Context, runId uuid.UUID) error {
	if err := c.rdb.Set(ctx, cancelKey(runId), "1", cancelFlagTTL).Err(); err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	return nil
}

func (c *RedisCoordinator) IsCancelRequested(ctx context.Context, runId uuid.UUID) (bool, error) {
	n, err := c.rdb.Exists(ctx, cancelKey(runId)).Result()
	if err != nil {
		return false, fmt.Errorf("check cancel flag: %w", err)
	}
	return n > 0, nil
}
