package workflows

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/microsoft/durabletask-go/task"

	"github.com/Youmanvi/bookingengine/internal/activities"
	"github.com/Youmanvi/bookingengine/internal/cascade"
)

const CascadeRetryName = "cascade_retry"

// CascadeRetryInput is the input to the cascade retry orchestrator
type CascadeRetryInput struct {
	TenantID           string        `json:"tenant_id"`
	ResourceID         string        `json:"resource_id"`
	FailedReservations []string      `json:"failed_reservations,omitempty"`
	FailedBlocks       []string      `json:"failed_blocks,omitempty"`
	Incomplete         bool          `json:"incomplete,omitempty"`
	MaxRounds          int           `json:"max_rounds"`
	Backoff            time.Duration `json:"backoff"`
}

// CascadeRetryOutput lists what the retry resolved and what is left for manual reconciliation
type CascadeRetryOutput struct {
	ResourceID         string           `json:"resource_id"`
	Rounds             int              `json:"rounds"`
	Cancelled          int              `json:"cancelled"`
	Deactivated        int              `json:"deactivated"`
	Skipped            int              `json:"skipped"`
	Resumed            *cascade.Summary `json:"resumed,omitempty"`
	FailedReservations []string         `json:"failed_reservations,omitempty"`
	FailedBlocks       []string         `json:"failed_blocks,omitempty"`
	Errors             []string         `json:"errors,omitempty"`
}

// Unresolved reports whether any item still needs manual reconciliation
func (o *CascadeRetryOutput) Unresolved() bool {
	return len(o.FailedReservations) > 0 || len(o.FailedBlocks) > 0
}

// CascadeRetryOrchestrator re-attempts the failed items of an archive cascade.
// Each round calls one activity per item; items that fail again wait on a
// durable timer for the next round. An incomplete cascade is first resumed
// in full, which also picks up items the first run never reached.
func CascadeRetryOrchestrator(ctx *task.OrchestrationContext) (any, error) {
	var inp CascadeRetryInput
	if err := ctx.GetInput(&inp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cascade retry input: %w", err)
	}
	if inp.MaxRounds <= 0 {
		inp.MaxRounds = 1
	}

	output := CascadeRetryOutput{ResourceID: inp.ResourceID}
	reservations := inp.FailedReservations
	blocks := inp.FailedBlocks

	if inp.Incomplete {
		var summary cascade.Summary
		if err := call(ctx, activities.ResumeCascadeName, activities.ItemInput{TenantID: inp.TenantID, ResourceID: inp.ResourceID}, &summary); err != nil {
			output.Errors = append(output.Errors, fmt.Sprintf("resume: %v", err))
		} else {
			output.Resumed = &summary
			reservations = union(reservations, summary.FailedReservations)
			blocks = union(blocks, summary.FailedBlocks)
		}
	}

	for round := 1; round <= inp.MaxRounds && (len(reservations) > 0 || len(blocks) > 0); round++ {
		if round > 1 && inp.Backoff > 0 {
			if err := ctx.CreateTimer(inp.Backoff * time.Duration(round-1)).Await(nil); err != nil {
				return nil, fmt.Errorf("cascade retry timer failed: %w", err)
			}
		}
		output.Rounds = round

		var stillFailing []string
		for _, id := range reservations {
			item := activities.ItemInput{TenantID: inp.TenantID, ResourceID: inp.ResourceID, ID: id}
			var result activities.ItemOutput
			if err := call(ctx, activities.CancelReservationName, item, &result); err != nil {
				output.Errors = append(output.Errors, fmt.Sprintf("round %d reservation %s: %v", round, id, err))
				stillFailing = append(stillFailing, id)
				continue
			}
			if result.Status == activities.StatusSkipped {
				output.Skipped++
				continue
			}
			output.Cancelled++
		}
		reservations = stillFailing

		stillFailing = nil
		for _, id := range blocks {
			item := activities.ItemInput{TenantID: inp.TenantID, ResourceID: inp.ResourceID, ID: id}
			var result activities.ItemOutput
			if err := call(ctx, activities.DeactivateBlockName, item, &result); err != nil {
				output.Errors = append(output.Errors, fmt.Sprintf("round %d block %s: %v", round, id, err))
				stillFailing = append(stillFailing, id)
				continue
			}
			if result.Status == activities.StatusSkipped {
				output.Skipped++
				continue
			}
			output.Deactivated++
		}
		blocks = stillFailing
	}

	output.FailedReservations = reservations
	output.FailedBlocks = blocks
	return output, nil
}

// call runs one activity. Activities take and return JSON bytes.
func call(ctx *task.OrchestrationContext, name string, input any, out any) error {
	inputBytes, err := json.Marshal(input)
	if err != nil {
		return err
	}
	var raw []byte
	if err := ctx.CallActivity(name, task.WithActivityInput(inputBytes)).Await(&raw); err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, id := range append(append([]string{}, a...), b...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
