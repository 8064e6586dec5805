package completion

import (
	"context"
	"time"
)

// RetryPolicy bounds how often and how patiently transient failures are retried.
// Sleep is swappable so tests can run without waiting.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy makes three attempts five seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Second, Sleep: SleepContext}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) wait(ctx context.Context) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	return sleep(ctx, p.Delay)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
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
