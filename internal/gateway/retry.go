package gateway

import (
	"context"
	"log/slog"
	"time"
)

const (
	maxAttempts       = 3
	initialBackoff    = 500 * time.Millisecond
	backoffMultiplier = 2
)

// withRetry runs fn up to maxAttempts times with exponential backoff
// (500ms, 1s). Returns the last error if every attempt fails.
func withRetry[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)

	backoff := initialBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		if attempt == maxAttempts {
			break
		}

		slog.WarnContext(ctx, "gateway call failed, retrying",
			"op", op,
			"attempt", attempt,
			"backoff", backoff,
			"error", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return result, ctx.Err()
		}
		backoff *= backoffMultiplier
	}

	return result, err
}
