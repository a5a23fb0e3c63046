package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Func is one invocation of the operation under retry. attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

// Policy re-invokes a failing operation up to a bounded number of attempts
// with a backoff delay between attempts. A Policy holds no per-call state and
// is safe for concurrent use.
type Policy struct {
	config  Config
	backoff *Backoff

	// OnRetry, when set, is called before sleeping ahead of the next attempt.
	OnRetry func(ctx context.Context, attempt int, delay time.Duration, err error)

	wait func(ctx context.Context, d time.Duration) error
}

func NewPolicy(cfg Config) *Policy {
	return &Policy{
		config:  cfg,
		backoff: NewBackoff(cfg),
		wait:    sleep,
	}
}

func (p *Policy) ShouldRetry(attempt int) bool {
	return attempt < p.config.MaxAttempts
}

func (p *Policy) NextDelay(attempt int) time.Duration {
	return p.backoff.NextDelay(attempt)
}

// MaxAttempts returns the maximum configured attempts.
func (p *Policy) MaxAttempts() int {
	return p.config.MaxAttempts
}

// Do runs fn until it succeeds, returns a permanent error, the context is
// done, or the attempt budget is spent. The returned error wraps the last
// failure.
func (p *Policy) Do(ctx context.Context, fn Func) error {
	var lastErr error
	attempt := 0
	for {
		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return fmt.Errorf("not retryable after attempt %d: %w", attempt, err)
		}
		if !p.ShouldRetry(attempt) {
			return &ExhaustedError{Attempts: attempt, Err: lastErr}
		}

		delay := p.NextDelay(attempt - 1)
		if p.OnRetry != nil {
			p.OnRetry(ctx, attempt, delay, err)
		}
		if err := p.wait(ctx, delay); err != nil {
			return errors.Join(err, &ExhaustedError{Attempts: attempt, Err: lastErr})
		}
	}
}

// ExhaustedError reports that every attempt in the budget failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func sleep(ctx context.Context, d time.Duration) error {
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
