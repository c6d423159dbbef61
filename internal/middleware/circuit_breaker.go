package middleware

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
	"github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

// WithCircuitBreaker protects a step with a circuit breaker that trips once
// at least three requests were seen and the failure ratio reaches threshold.
func WithCircuitBreaker(logger *observability.Logger, name string, threshold float64, timeout time.Duration) Middleware {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return func(next Step) Step {
		return func(ctx context.Context, input []byte) ([]byte, error) {
			result, err := cb.Execute(func() (interface{}, error) {
				return next(ctx, input)
			})
			if err != nil {
				if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
					return nil, errors.NewTransientError(
						errors.CodeCircuitBreakerOpen,
						fmt.Sprintf("circuit breaker open for step: %s", name),
						err,
					)
				}
				return nil, err
			}

			output, _ := result.([]byte)
			return output, nil
		}
	}
}
