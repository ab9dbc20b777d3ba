// Package utils carries small shared helpers: cancellable sleeps,
// amount/address validation and the page-parameter intent parser.
package utils

import (
	"context"
	"time"
)

// SleepFunc suspends the caller for d or until ctx is done. Retry loops
// take one of these so tests can substitute a fake clock.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-timer SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoSleep skips delays entirely; it still honors cancellation.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
