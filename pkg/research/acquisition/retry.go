package acquisition

import (
	"context"
	"errors"
	"time"
)

type retryingSearcher struct {
	next     Searcher
	attempts int
	backoff  time.Duration
}

// WithRetry retries ErrSearchFailed up to attempts times in total with a
// linear backoff. Other errors are returned immediately.
func WithRetry(next Searcher, attempts int, backoff time.Duration) Searcher {
	if attempts < 1 {
		attempts = 1
	}
	return &retryingSearcher{next: next, attempts: attempts, backoff: backoff}
}

func (r *retryingSearcher) Search(ctx context.Context, query string, recencyDays *int, limit int) ([]SearchResult, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		results, err := r.next.Search(ctx, query, recencyDays, limit)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if !errors.Is(err, ErrSearchFailed) || attempt == r.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
	return nil, lastErr
}
