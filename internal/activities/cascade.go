package activities

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Youmanvi/bookingengine/internal/cascade"
	"github.com/Youmanvi/bookingengine/internal/middleware"
	"github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

const (
	CancelReservationName = "cascade:cancel_reservation"
	DeactivateBlockName   = "cascade:deactivate_block"
	ResumeCascadeName     = "cascade:resume"
)

// CascadeTarget runs the per-item steps of an archive cascade. The
// consistency service implements it, so retried items are audited and
// announced exactly like first attempts.
type CascadeTarget interface {
	CancelArchived(ctx context.Context, reservationID string) (cancelled bool, err error)
	DeactivateArchived(ctx context.Context, blockID string) (deactivated bool, err error)
	ResumeCascade(ctx context.Context, tenantID, resourceID string) (cascade.Summary, error)
}

// ItemInput names one cascade item
type ItemInput struct {
	TenantID   string `json:"tenant_id"`
	ResourceID string `json:"resource_id"`
	ID         string `json:"id,omitempty"`
}

const (
	StatusCancelled = "cancelled"
	StatusInactive  = "inactive"
	// StatusSkipped marks an item that was already released or whose resource was restored
	StatusSkipped = "skipped"
)

// ItemOutput is the result of one cascade item
type ItemOutput struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func decodeItem(input []byte, requireID bool) (ItemInput, error) {
	var inp ItemInput
	if err := json.Unmarshal(input, &inp); err != nil {
		return inp, errors.NewPermanentError("INVALID_INPUT", "failed to unmarshal cascade item", err)
	}
	if inp.ResourceID == "" || (requireID && inp.ID == "") {
		return inp, errors.NewPermanentError("INVALID_INPUT", "resource and item IDs are required", nil)
	}
	return inp, nil
}

func encode(v any) ([]byte, error) {
	result, err := json.Marshal(v)
	if err != nil {
		return nil, errors.NewPermanentError("SERIALIZATION_ERROR", fmt.Sprintf("failed to marshal %T", v), err)
	}
	return result, nil
}

// CancelReservationActivity cancels one reservation left behind by an archive cascade
func CancelReservationActivity(target CascadeTarget) middleware.Step {
	return func(ctx context.Context, input []byte) ([]byte, error) {
		inp, err := decodeItem(input, true)
		if err != nil {
			return nil, err
		}
		cancelled, err := target.CancelArchived(ctx, inp.ID)
		if err != nil {
			return nil, err
		}
		if !cancelled {
			return encode(ItemOutput{ID: inp.ID, Status: StatusSkipped})
		}
		return encode(ItemOutput{ID: inp.ID, Status: StatusCancelled})
	}
}

// DeactivateBlockActivity deactivates one block left behind by an archive cascade
func DeactivateBlockActivity(target CascadeTarget) middleware.Step {
	return func(ctx context.Context, input []byte) ([]byte, error) {
		inp, err := decodeItem(input, true)
		if err != nil {
			return nil, err
		}
		deactivated, err := target.DeactivateArchived(ctx, inp.ID)
		if err != nil {
			return nil, err
		}
		if !deactivated {
			return encode(ItemOutput{ID: inp.ID, Status: StatusSkipped})
		}
		return encode(ItemOutput{ID: inp.ID, Status: StatusInactive})
	}
}

// ResumeCascadeActivity re-runs a whole cascade whose enumeration was cut short
func ResumeCascadeActivity(target CascadeTarget) middleware.Step {
	return func(ctx context.Context, input []byte) ([]byte, error) {
		inp, err := decodeItem(input, false)
		if err != nil {
			return nil, err
		}
		summary, err := target.ResumeCascade(ctx, inp.TenantID, inp.ResourceID)
		if err != nil {
			return nil, err
		}
		return encode(summary)
	}
}
