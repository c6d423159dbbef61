package middleware

import (
	"context"
	"time"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
)

// WithMetrics records execution count and duration of a step
func WithMetrics(metrics *observability.Metrics, stepName string) Middleware {
	return func(next Step) Step {
		return func(ctx context.Context, input []byte) ([]byte, error) {
			start := time.Now()
			output, err := next(ctx, input)
			metrics.RecordStep(stepName, time.Since(start), err)
			return output, err
		}
	}
}
