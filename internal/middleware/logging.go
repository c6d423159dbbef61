package middleware

import (
	"context"
	"time"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
)

// WithLogging logs each step execution with its duration and the trace of ctx
func WithLogging(logger *observability.Logger, stepName string) Middleware {
	return func(next Step) Step {
		return func(ctx context.Context, input []byte) ([]byte, error) {
			start := time.Now()
			stepLogger := logger.WithSpan(ctx).WithStep(stepName)

			stepLogger.Debug().Int("input_bytes", len(input)).Msg("step started")

			output, err := next(ctx, input)
			duration := time.Since(start)

			if err != nil {
				stepLogger.Error().
					Err(err).
					Dur("duration_ms", duration).
					Msg("step failed")
				return nil, err
			}

			stepLogger.Info().
				Dur("duration_ms", duration).
				Msg("step completed")

			return output, nil
		}
	}
}
