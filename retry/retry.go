// Package retry re-runs failed operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/joeychilson/pdfworks/config"
	"github.com/joeychilson/pdfworks/ratelimit"
)

const (
	// jitterPercent is the percentage of jitter to add to retry delays (+/- 25%).
	jitterPercent = 0.25
)

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// immediately.
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

// Retrier runs functions with throttling, exponential backoff and jitter.
type Retrier struct {
	limiter *ratelimit.Limiter
	config  config.RetryConfig
}

// New creates a new Retrier. A nil limiter disables throttling.
func New(l *ratelimit.Limiter, cfg config.RetryConfig) *Retrier {
	return &Retrier{
		limiter: l,
		config:  cfg,
	}
}

// Do calls fn until it succeeds, returns a permanent error, or the retry
// budget is spent. Each attempt holds a throttle slot for operation.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	maxRetries := r.config.GetMaxRetries()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := r.attempt(ctx, operation, fn)
		if err == nil {
			return nil
		}

		var p *permanentError
		if errors.As(err, &p) {
			return p.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		lastErr = fmt.Errorf("attempt %d failed: %w", attempt, err)

		if attempt < maxRetries {
			if sleepErr := r.sleep(ctx, r.calculateBackoff(attempt)); sleepErr != nil {
				return sleepErr
			}
		}
	}

	if maxRetries == 0 {
		return errors.Unwrap(lastErr)
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries+1, lastErr)
}

func (r *Retrier) attempt(ctx context.Context, operation string, fn func(context.Context) error) error {
	if r.limiter == nil {
		return fn(ctx)
	}
	if err := r.limiter.Wait(ctx, operation); err != nil {
		return Permanent(fmt.Errorf("rate limit wait failed: %w", err))
	}
	defer r.limiter.Release(operation)
	return fn(ctx)
}

// calculateBackoff computes the backoff duration for a given attempt using exponential backoff.
func (r *Retrier) calculateBackoff(attempt int) time.Duration {
	initialDelay := r.config.GetInitialDelay()
	maxDelay := r.config.GetMaxDelay()
	multiplier := r.config.GetMultiplier()

	delay := float64(initialDelay) * math.Pow(multiplier, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	return addJitter(time.Duration(delay))
}

// addJitter spreads the duration by +/- 25%.
func addJitter(duration time.Duration) time.Duration {
	if duration == 0 {
		return 0
	}

	jitterRange := float64(duration) * jitterPercent
	jitter := (rand.Float64()*2.0 - 1.0) * jitterRange

	result := float64(duration) + jitter
	if result < 0 {
		return 0
	}
	return time.Duration(result)
}

func (r *Retrier) sleep(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
