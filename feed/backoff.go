package feed

import (
	"context"
	"math"
	"time"
)

// Backoff returns base × 2^attempt. It saturates instead of overflowing.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt <= 0 {
		return base
	}
	if attempt >= 63 || base > time.Duration(math.MaxInt64>>attempt) {
		return time.Duration(math.MaxInt64)
	}
	return base << attempt
}

// CappedBackoff is Backoff limited to limit, but never below base. A
// non-positive limit means no cap.
func CappedBackoff(base time.Duration, attempt int, limit time.Duration) time.Duration {
	d := Backoff(base, attempt)
	if limit <= 0 || d <= limit {
		return d
	}
	if limit < base {
		return base
	}
	return limit
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
