package activities

import (
	"time"

	"github.com/microsoft/durabletask-go/task"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
	"github.com/Youmanvi/bookingengine/internal/middleware"
)

// ActivityDeps contains dependencies for all activities
type ActivityDeps struct {
	Logger          *observability.Logger
	Metrics         *observability.Metrics
	Target          CascadeTarget
	RetryPolicy     middleware.RetryPolicy
	TimeoutDuration time.Duration
}

// RegisterActivities adds every cascade activity, wrapped in the middleware chain, to registry
func RegisterActivities(registry *task.TaskRegistry, deps *ActivityDeps) {
	registerActivity(registry, CancelReservationName, CancelReservationActivity(deps.Target), deps)
	registerActivity(registry, DeactivateBlockName, DeactivateBlockActivity(deps.Target), deps)
	registerActivity(registry, ResumeCascadeName, ResumeCascadeActivity(deps.Target), deps)
}

// registerActivity registers an activity with middleware
func registerActivity(registry *task.TaskRegistry, name string, activity middleware.Step, deps *ActivityDeps) {
	wrapped := middleware.Chain(
		activity,
		middleware.WithLogging(deps.Logger, name),
		middleware.WithMetrics(deps.Metrics, name),
		middleware.WithTimeout(deps.TimeoutDuration),
		// gRPC error handling BEFORE retry so transient errors are classified correctly
		middleware.WithGRPCErrorHandling(),
		middleware.WithRetry(deps.Logger, deps.RetryPolicy),
	)

	taskActivity := func(ctx task.ActivityContext) (any, error) {
		var input []byte
		if err := ctx.GetInput(&input); err != nil {
			return nil, err
		}
		return wrapped(ctx.Context(), input)
	}

	registry.AddActivityN(name, taskActivity)
}
