package workflows

import (
	"github.com/microsoft/durabletask-go/task"

	"github.com/Youmanvi/bookingengine/internal/activities"
)

// NewWorkflowRegistry creates a registry holding every orchestrator and its activities
func NewWorkflowRegistry(deps *activities.ActivityDeps) *task.TaskRegistry {
	registry := task.NewTaskRegistry()

	registry.AddOrchestratorN(CascadeRetryName, CascadeRetryOrchestrator)
	activities.RegisterActivities(registry, deps)

	return registry
}
