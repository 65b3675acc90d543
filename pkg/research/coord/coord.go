// Package coord holds the cross-process state of research runs: which worker
// owns a run and whether its cancellation was requested.
package coord

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Coordinator interface {
	// AcquireRun returns false when another worker already owns the run.
	AcquireRun(ctx context.Context, runId uuid.UUID, ttl time.Duration) (bool, error)
	ReleaseRun(ctx context.Context, runId uuid.UUID) error
	RequestCancel(ctx context.Context, runId uuid.UUID) error
	IsCancelRequested(ctx context.Context, runId uuid.UUID) (bool, error)
}

const cancelFlagTTL = 24 * time.Hour

func lockKey(runId uuid.UUID) string   { return "research:run:lock:" + runId.String() }
func cancelKey(runId uuid.UUID) string { return "research:run:cancel:" + runId.String() }
