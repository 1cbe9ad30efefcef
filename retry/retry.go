// Package retry implements exponential backoff with full jitter for
// transient network failures. The policy is an explicit value passed to
// each call site so the retry behavior stays visible and testable.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the extraction/shortening services' retry discipline.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Do stops immediately and returns the original error.
// Service-reported failures (error status, bad credentials) are permanent;
// only transport-level failures are worth another attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn up to p.MaxAttempts times, sleeping an exponentially growing
// randomized delay between attempts. Each backoff sleep observes ctx, so an
// abandoned request stops retrying at the next checkpoint. fn is invoked with
// a fresh call each attempt; no state is carried between attempts.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := p.BaseDelay << (attempt - 1)
			if p.MaxDelay > 0 && backoff > p.MaxDelay {
				backoff = p.MaxDelay
			}
			// Full jitter: sleep a uniform random duration in (0, backoff].
			sleep := time.Duration(rand.Int63n(int64(backoff))) + 1
			slog.Warn("retrying", slog.String("op", op), slog.Int("attempt", attempt), slog.Duration("backoff", sleep), slog.Any("err", lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}
	return lastErr
}
