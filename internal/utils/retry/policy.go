// Package retry provides a bounded exponential backoff policy for
// idempotent calls.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy retries a call up to MaxAttempts times. The delay before attempt n
// (n >= 2) is BaseDelay * 2^(n-2), capped at MaxDelay, plus up to
// Jitter*delay of random spread.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// New returns a policy with the given bounds and 20% jitter.
func New(maxAttempts int, baseDelay, maxDelay time.Duration) *Policy {
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		Jitter:      0.2,
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ErrExhausted wraps the last error once all attempts are used up.
type ErrExhausted struct {
	Attempts int
	Last     error
}

func (e *ErrExhausted) Error() string {
	return "retry: attempts exhausted: " + e.Last.Error()
}

func (e *ErrExhausted) Unwrap() error { return e.Last }

// Do calls fn until it succeeds, returns a Permanent error, ctx ends, or
// MaxAttempts is reached. fn receives the 1-based attempt number.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := p.doSleep(ctx, p.Backoff(attempt)); err != nil {
				return err
			}
		}

		last = fn(ctx, attempt)
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}
	}
	return &ErrExhausted{Attempts: attempts, Last: last}
}

// Backoff returns the delay to wait before the given attempt.
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt <= 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 2; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		r := rand.Float64
		if p.rand != nil {
			r = p.rand
		}
		d += time.Duration(float64(d) * p.Jitter * r())
	}
	return d
}

func (p *Policy) doSleep(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
