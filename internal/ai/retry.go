package ai

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retry budget for external calls: 3 attempts total, exponential backoff from
// 1s, up to 10% jitter. Auth and malformed-request errors are never retried.
const (
	maxAttempts        = 3
	defaultBackoffBase = time.Second
)

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == 408 || se.Code == 429:
			return true
		case se.Code >= 500:
			return true
		default:
			return false
		}
	}
	// Transport-level failures (timeouts, resets) carry no status; treat as
	// transient.
	return true
}

func doWithRetry(ctx context.Context, base time.Duration, fn func(ctx context.Context) error) error {
	if base <= 0 {
		base = defaultBackoffBase
	}
	b := retry.WithJitterPercent(10, retry.WithMaxRetries(maxAttempts-1, retry.NewExponential(base)))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
