// Package retry provides the single retry-with-backoff combinator shared by
// the generation and delivery clients.
package retry

import (
	"context"
	"time"
)

const (
	defaultBaseBackoff = 400 * time.Millisecond
	defaultMaxBackoff  = 4 * time.Second
)

type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Normalize fills unset fields with defaults and keeps the bounds coherent.
func (p Policy) Normalize() Policy {
	out := p
	if out.MaxAttempts < 1 {
		out.MaxAttempts = 1
	}
	if out.BaseBackoff <= 0 {
		out.BaseBackoff = defaultBaseBackoff
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = defaultMaxBackoff
	}
	if out.MaxBackoff < out.BaseBackoff {
		out.MaxBackoff = out.BaseBackoff
	}
	return out
}

// Backoff returns the wait before the attempt after attempt n (1-based):
// base doubled per attempt, capped at MaxBackoff.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

// DoValue invokes op up to p.MaxAttempts times, sleeping p.Backoff between
// attempts. A nil error returns immediately; an error the predicate rejects
// propagates immediately. Context cancellation aborts the wait.
func DoValue[T any](ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.Normalize()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if retryable == nil || !retryable(err) || attempt == p.MaxAttempts {
			return zero, err
		}
		if err := sleep(ctx, p.Backoff(attempt)); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// Do is DoValue for operations without a result.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, retryable, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
