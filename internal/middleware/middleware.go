package middleware

import "context"

// Step is a unit of work run through the middleware chain: a durable
// activity body, an outbox publish or a post-commit record write.
type Step func(ctx context.Context, input []byte) ([]byte, error)

// Middleware wraps a Step
type Middleware func(Step) Step

// Chain applies middlewares so that the first one listed is the outermost
func Chain(step Step, middlewares ...Middleware) Step {
	for i := len(middlewares) - 1; i >= 0; i-- {
		step = middlewares[i](step)
	}
	return step
}
