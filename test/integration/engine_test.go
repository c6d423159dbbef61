package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Youmanvi/bookingengine/internal/audit"
	"github.com/Youmanvi/bookingengine/internal/consistency"
	"github.com/Youmanvi/bookingengine/internal/domain"
	"github.com/Youmanvi/bookingengine/internal/events"
	"github.com/Youmanvi/bookingengine/test/fixtures"
)

var errStoreDown = errors.New("bookings store unavailable")

func TestReservationLifecycle_AuditAndOutboxAcrossStores(t *testing.T) {
	h := NewTestHarness(t)
	ctx := context.Background()

	res := h.PublishedResource(t, true)
	r := h.Submit(t, res.ID, fixtures.Slot(0, 10, 12))
	assert.Equal(t, domain.ReservationStatusPending, r.Status)

	r, err := h.Service.ApproveReservation(ctx, consistency.ApproveReservationRequest{
		TenantID: fixtures.TenantID, ReservationID: r.ID, ApproverID: "owner-1", ExpectedVersion: r.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, r.Status)

	_, err = h.Service.SubmitReservation(ctx, consistency.SubmitReservationRequest{
		TenantID: fixtures.TenantID, ResourceID: res.ID, RequesterID: "user-2",
		Start: fixtures.At(0, 11, 0), End: fixtures.At(0, 13, 0),
	})
	require.Error(t, err, "confirmed slot stays held")

	r, err = h.Service.CancelReservation(ctx, consistency.CancelReservationRequest{
		TenantID: fixtures.TenantID, ReservationID: r.ID, ActorID: "user-1", ExpectedVersion: r.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, r.Status)

	trail, err := h.Service.AuditTrail(ctx, fixtures.TenantID, audit.EntityReservation, r.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, []string{"submit", "approve", "cancel"}, []string{trail[0].Action, trail[1].Action, trail[2].Action})

	published, err := h.Relay.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, published)
	assert.Equal(t, []string{
		string(events.ResourceCreated),
		string(events.ResourcePublished),
		string(events.ReservationCreated),
		string(events.ReservationApproved),
		string(events.ReservationCancelled),
	}, h.Published.Keys())

	pending, err := h.Outbox.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestArchive_DurableRetryCancelsFailedItems(t *testing.T) {
	h := NewTestHarness(t)
	ctx := context.Background()

	res := h.PublishedResource(t, false)
	var held []*domain.Reservation
	for day := 0; day < 3; day++ {
		held = append(held, h.Submit(t, res.ID, fixtures.Slot(day, 9, 10)))
	}
	h.Bookings.Fail(held[1].ID)

	result, err := h.Service.ArchiveResource(ctx, consistency.ResourceCommand{
		TenantID: fixtures.TenantID, ResourceID: res.ID, ActorID: "owner-1", ExpectedVersion: res.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ResourceStatusArchived, result.Resource.Status)
	assert.Equal(t, 2, result.Cascade.Cancelled)
	assert.Equal(t, []string{held[1].ID}, result.Cascade.FailedReservations)
	require.NotEmpty(t, result.RetryInstanceID)

	h.Bookings.Heal()

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	output, err := h.Scheduler.WaitForCascadeRetry(waitCtx, result.RetryInstanceID)
	require.NoError(t, err)
	assert.False(t, output.Unresolved())
	assert.Equal(t, 1, output.Cancelled)

	for _, r := range held {
		got, err := h.Service.GetReservation(ctx, fixtures.TenantID, r.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusCancelled, got.Status, r.ID)
		assert.Equal(t, domain.CancelReasonResourceArchived, got.Reason, r.ID)
	}

	trail, err := h.Service.AuditTrail(ctx, fixtures.TenantID, audit.EntityReservation, held[1].ID)
	require.NoError(t, err)
	require.Len(t, trail, 2, "the failed attempts leave no entry")
	assert.Equal(t, "cascade", trail[1].Component)
}

func TestArchive_RetryLeavesUnresolvedItemsForReconciliation(t *testing.T) {
	h := NewTestHarness(t)
	ctx := context.Background()

	res := h.PublishedResource(t, false)
	r := h.Submit(t, res.ID, fixtures.Slot(1, 9, 10))
	h.Bookings.Fail(r.ID)

	result, err := h.Service.ArchiveResource(ctx, consistency.ResourceCommand{
		TenantID: fixtures.TenantID, ResourceID: res.ID, ActorID: "owner-1", ExpectedVersion: res.Version,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.RetryInstanceID)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	output, err := h.Scheduler.WaitForCascadeRetry(waitCtx, result.RetryInstanceID)
	require.NoError(t, err)
	assert.True(t, output.Unresolved())
	assert.Equal(t, []string{r.ID}, output.FailedReservations)
	assert.Equal(t, 5, output.Rounds)

	got, err := h.Service.GetReservation(ctx, fixtures.TenantID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, got.Status)
}
