package matchactor

import (
	"context"
	"time"
)

// retryWithBackoff runs op up to attempts times with doubling backoff
// starting at base, stopping early on success. Modeled on
// pkg/distributed/redis_lock.go's TryLockWithRetry loop. Returns the last
// error if every attempt fails.
func retryWithBackoff(ctx context.Context, attempts int, base time.Duration, op func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(base << uint(i)):
			}
		}
	}
	return err
}
