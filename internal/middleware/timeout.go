package middleware

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

// WithTimeout runs the step under a deadline. The step runs on the caller's
// goroutine and must return once its context is done; nothing is left running
// after WithTimeout returns.
func WithTimeout(timeout time.Duration) Middleware {
	return func(next Step) Step {
		return func(ctx context.Context, input []byte) ([]byte, error) {
			stepCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			output, err := next(stepCtx, input)
			if err == nil {
				return output, nil
			}

			// only our own deadline is a step timeout; a cancelled caller keeps its error
			if ctx.Err() == nil && stderrors.Is(stepCtx.Err(), context.DeadlineExceeded) {
				return nil, errors.NewTimeoutError(errors.CodeStepTimeout, "step execution exceeded timeout")
			}
			return output, err
		}
	}
}
