package activities

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Youmanvi/bookingengine/internal/cascade"
	"github.com/Youmanvi/bookingengine/internal/middleware"
	"github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

type fakeTarget struct {
	cancelled   []string
	deactivated []string
	released    map[string]bool
	failWith    error
}

func (f *fakeTarget) CancelArchived(_ context.Context, id string) (bool, error) {
	if f.failWith != nil {
		return false, f.failWith
	}
	if f.released[id] {
		return false, nil
	}
	f.cancelled = append(f.cancelled, id)
	return true, nil
}

func (f *fakeTarget) DeactivateArchived(_ context.Context, id string) (bool, error) {
	if f.failWith != nil {
		return false, f.failWith
	}
	if f.released[id] {
		return false, nil
	}
	f.deactivated = append(f.deactivated, id)
	return true, nil
}

func (f *fakeTarget) ResumeCascade(_ context.Context, _, resourceID string) (cascade.Summary, error) {
	return cascade.Summary{ResourceID: resourceID, Cancelled: 4}, nil
}

func itemInput(t *testing.T, inp ItemInput) []byte {
	t.Helper()
	data, err := json.Marshal(inp)
	require.NoError(t, err)
	return data
}

func TestCancelReservationActivity(t *testing.T) {
	target := &fakeTarget{}
	step := CancelReservationActivity(target)

	out, err := step(context.Background(), itemInput(t, ItemInput{TenantID: "t", ResourceID: "r1", ID: "res-1"}))
	require.NoError(t, err)

	var result ItemOutput
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, ItemOutput{ID: "res-1", Status: StatusCancelled}, result)
	assert.Equal(t, []string{"res-1"}, target.cancelled)
}

func TestCascadeActivities_ReportSkippedItems(t *testing.T) {
	target := &fakeTarget{released: map[string]bool{"res-1": true, "blk-1": true}}

	tests := []struct {
		name string
		step func(CascadeTarget) middleware.Step
		id   string
	}{
		{"reservation already released", CancelReservationActivity, "res-1"},
		{"block already inactive", DeactivateBlockActivity, "blk-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.step(target)(context.Background(), itemInput(t, ItemInput{ResourceID: "r1", ID: tt.id}))
			require.NoError(t, err)

			var result ItemOutput
			require.NoError(t, json.Unmarshal(out, &result))
			assert.Equal(t, ItemOutput{ID: tt.id, Status: StatusSkipped}, result)
		})
	}
	assert.Empty(t, target.cancelled)
	assert.Empty(t, target.deactivated)
}

func TestDeactivateBlockActivity_PropagatesTargetError(t *testing.T) {
	target := &fakeTarget{failWith: errors.Storage("update block", assert.AnError)}
	step := DeactivateBlockActivity(target)

	_, err := step(context.Background(), itemInput(t, ItemInput{ResourceID: "r1", ID: "blk-1"}))
	require.Error(t, err)
	assert.Equal(t, errors.CodeStorageFailure, errors.CodeOf(err))
}

func TestActivities_RejectMalformedInput(t *testing.T) {
	target := &fakeTarget{}

	_, err := CancelReservationActivity(target)(context.Background(), []byte("not json"))
	assert.Equal(t, errors.ErrorTypePermanent, errors.ClassifyError(err))

	_, err = CancelReservationActivity(target)(context.Background(), itemInput(t, ItemInput{ResourceID: "r1"}))
	assert.Equal(t, errors.ErrorTypePermanent, errors.ClassifyError(err))
	assert.Empty(t, target.cancelled)
}

func TestResumeCascadeActivity(t *testing.T) {
	out, err := ResumeCascadeActivity(&fakeTarget{})(context.Background(), itemInput(t, ItemInput{TenantID: "t", ResourceID: "r1"}))
	require.NoError(t, err)

	var summary cascade.Summary
	require.NoError(t, json.Unmarshal(out, &summary))
	assert.Equal(t, "r1", summary.ResourceID)
	assert.Equal(t, 4, summary.Cancelled)
}
