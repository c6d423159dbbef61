package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/microsoft/durabletask-go/api"
	"github.com/microsoft/durabletask-go/backend"
	"github.com/microsoft/durabletask-go/task"

	"github.com/Youmanvi/bookingengine/internal/cascade"
)

// NewTaskHubWorker builds the worker that executes registry's orchestrators
// and activities against be
func NewTaskHubWorker(be backend.Backend, registry *task.TaskRegistry, logger backend.Logger) backend.TaskHubWorker {
	executor := task.NewTaskExecutor(registry)
	orchestrationWorker := backend.NewOrchestrationWorker(be, executor, logger)
	activityWorker := backend.NewActivityTaskWorker(be, executor, logger)
	return backend.NewTaskHubWorker(be, orchestrationWorker, activityWorker, logger)
}

// CascadeRetryScheduler schedules durable retries of failed cascade items
type CascadeRetryScheduler struct {
	client    backend.TaskHubClient
	maxRounds int
	backoff   time.Duration
}

func NewCascadeRetryScheduler(client backend.TaskHubClient, maxRounds int, backoff time.Duration) *CascadeRetryScheduler {
	return &CascadeRetryScheduler{client: client, maxRounds: maxRounds, backoff: backoff}
}

// ScheduleCascadeRetry starts a cascade_retry orchestration for the summary's
// failed items and returns its instance ID
func (s *CascadeRetryScheduler) ScheduleCascadeRetry(ctx context.Context, tenantID string, summary cascade.Summary) (string, error) {
	input := CascadeRetryInput{
		TenantID:           tenantID,
		ResourceID:         summary.ResourceID,
		FailedReservations: summary.FailedReservations,
		FailedBlocks:       summary.FailedBlocks,
		Incomplete:         summary.Incomplete,
		MaxRounds:          s.maxRounds,
		Backoff:            s.backoff,
	}
	instanceID := api.InstanceID(fmt.Sprintf("cascade-%s-%s", summary.ResourceID, uuid.NewString()))

	id, err := s.client.ScheduleNewOrchestration(ctx, CascadeRetryName,
		api.WithInstanceID(instanceID),
		api.WithInput(input),
	)
	if err != nil {
		return "", fmt.Errorf("failed to schedule cascade retry for resource %s: %w", summary.ResourceID, err)
	}
	return string(id), nil
}

// WaitForCascadeRetry blocks until the orchestration finishes and returns its output
func (s *CascadeRetryScheduler) WaitForCascadeRetry(ctx context.Context, instanceID string) (*CascadeRetryOutput, error) {
	metadata, err := s.client.WaitForOrchestrationCompletion(ctx, api.InstanceID(instanceID))
	if err != nil {
		return nil, fmt.Errorf("failed waiting for cascade retry %s: %w", instanceID, err)
	}
	if metadata.FailureDetails != nil {
		return nil, fmt.Errorf("cascade retry %s failed: %s", instanceID, metadata.FailureDetails.GetErrorMessage())
	}

	var output CascadeRetryOutput
	if metadata.SerializedOutput != "" {
		if err := json.Unmarshal([]byte(metadata.SerializedOutput), &output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cascade retry output: %w", err)
		}
	}
	return &output, nil
}
