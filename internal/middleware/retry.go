package middleware

import (
	"context"
	"math"
	"time"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
	"github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

// RetryPolicy defines the retry strategy
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy returns an exponential policy starting at 100ms
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// WithRetry retries a step while it fails with transient or timeout errors.
// Errors outside the CustomError taxonomy are retried too.
func WithRetry(logger *observability.Logger, policy RetryPolicy) Middleware {
	return func(next Step) Step {
		return func(ctx context.Context, input []byte) ([]byte, error) {
			var lastErr error

			for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
				result, err := next(ctx, input)
				if err == nil {
					return result, nil
				}
				if !retryable(err) {
					return nil, err
				}

				lastErr = err

				if attempt < policy.MaxAttempts {
					backoff := calculateBackoff(attempt-1, policy)
					logger.Debug().
						Err(err).
						Int("attempt", attempt).
						Dur("backoff", backoff).
						Msg("retrying step after backoff")
					select {
					case <-time.After(backoff):
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
			}

			return nil, lastErr
		}
	}
}

func retryable(err error) bool {
	if errors.CodeOf(err) == "" {
		return true
	}
	switch errors.ClassifyError(err) {
	case errors.ErrorTypeTransient, errors.ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// calculateBackoff calculates exponential backoff
func calculateBackoff(attempt int, policy RetryPolicy) time.Duration {
	backoff := float64(policy.InitialBackoff.Milliseconds()) *
		math.Pow(policy.BackoffMultiplier, float64(attempt))

	maxMs := float64(policy.MaxBackoff.Milliseconds())
	if backoff > maxMs {
		backoff = maxMs
	}

	return time.Duration(backoff) * time.Millisecond
}
