package shared

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	retryAttempts  = 3
	retryBaseDelay = 50 * time.Millisecond
)

// RetryOnConflict runs op and retries it with exponential backoff
// (50ms, 100ms) while it fails with a SQLite busy/locked error.
func RetryOnConflict(ctx context.Context, name string, op func() error) error {
	var err error
	for i := 0; i < retryAttempts; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !IsSQLiteConflictError(err) || i == retryAttempts-1 {
			break
		}

		delay := retryBaseDelay * time.Duration(1<<i)
		slog.Debug("Database busy, retrying", "op", name, "attempt", i+1, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", name, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
