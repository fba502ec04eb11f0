package upstream

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultAttempts = 3
	backoffBase     = 1 * time.Second
	backoffCap      = 30 * time.Second
)

// retry runs fn up to attempts times, sleeping between attempts with
// exponential backoff (base 1s, cap 30s) plus up to 25% jitter. Only
// transient failures are retried; the last error is returned as-is.
func retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !Transient(lastErr) || i == attempts-1 {
			return lastErr
		}
		delay := backoffBase << uint(i)
		if delay > backoffCap {
			delay = backoffCap
		}
		delay += time.Duration(rand.Int63n(int64(delay) / 4))
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}
	return lastErr
}
