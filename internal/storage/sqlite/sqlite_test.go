package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Youmanvi/bookingengine/internal/domain"
	"github.com/Youmanvi/bookingengine/internal/storage"
)

var start = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

func newBookingStore(t *testing.T) *BookingStore {
	t.Helper()
	s, err := NewBookingStore(t.TempDir() + "/bookings.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newReservation(t *testing.T, id string, offset time.Duration) *domain.Reservation {
	t.Helper()
	iv := domain.Interval{Start: start.Add(offset), End: start.Add(offset + time.Hour)}
	r, err := domain.NewReservation(id, "tenant-1", "room-1", "user-1", iv, false, start.Add(-24*time.Hour))
	require.NoError(t, err)
	return r
}

func TestBookingStore_ReservationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newBookingStore(t)

	r := newReservation(t, "res-1", 0)
	r.IdempotencyKey = "key-1"
	require.NoError(t, s.CreateReservation(ctx, r))

	got, err := s.GetReservation(ctx, "res-1")
	require.NoError(t, err)
	assert.True(t, got.Interval.Start.Equal(r.Interval.Start))
	assert.Equal(t, domain.ReservationStatusConfirmed, got.Status)
	assert.Equal(t, "key-1", got.IdempotencyKey)
	assert.Nil(t, got.ApprovedAt)

	byKey, err := s.FindByIdempotencyKey(ctx, "tenant-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "res-1", byKey.ID)

	_, err = s.GetReservation(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestBookingStore_InstantsBeyondNanosecondRange(t *testing.T) {
	ctx := context.Background()
	s := newBookingStore(t)

	r := newReservation(t, "res-1", 0)
	require.NoError(t, s.CreateReservation(ctx, r))

	farFuture := *newReservation(t, "res-far", 0)
	farFuture.Interval = domain.Interval{
		Start: time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(3000, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	assert.Error(t, s.CreateReservation(ctx, &farFuture))
	_, err := s.GetReservation(ctx, "res-far")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// a query window ending past 2262 still finds earlier reservations
	window := domain.Interval{Start: start.Add(-time.Hour), End: time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC)}
	held, err := s.ListHolding(ctx, "room-1", window)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "res-1", held[0].ID)
}

func TestBookingStore_DuplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	s := newBookingStore(t)

	a := newReservation(t, "res-1", 0)
	a.IdempotencyKey = "key-1"
	require.NoError(t, s.CreateReservation(ctx, a))

	b := newReservation(t, "res-2", 2*time.Hour)
	b.IdempotencyKey = "key-1"
	assert.True(t, errors.Is(s.CreateReservation(ctx, b), storage.ErrAlreadyExists))

	c := newReservation(t, "res-3", 4*time.Hour)
	require.NoError(t, s.CreateReservation(ctx, c), "reservations without a key never collide")
	d := newReservation(t, "res-4", 6*time.Hour)
	require.NoError(t, s.CreateReservation(ctx, d))
}

func TestBookingStore_UpdateIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := newBookingStore(t)

	r := newReservation(t, "res-1", 0)
	require.NoError(t, s.CreateReservation(ctx, r))

	require.NoError(t, r.Cancel("user-1", "plans changed", start.Add(-time.Hour)))
	require.NoError(t, s.UpdateReservation(ctx, r, 1))

	err := s.UpdateReservation(ctx, r, 1)
	assert.True(t, errors.Is(err, storage.ErrVersionConflict))

	ghost := newReservation(t, "ghost", 0)
	assert.True(t, errors.Is(s.UpdateReservation(ctx, ghost, 1), storage.ErrNotFound))

	got, err := s.GetReservation(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, got.Status)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "plans changed", got.Reason)
}

func TestBookingStore_FutureHoldingPagesByKeyset(t *testing.T) {
	ctx := context.Background()
	s := newBookingStore(t)

	for i, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.CreateReservation(ctx, newReservation(t, id, time.Duration(i)*2*time.Hour)))
	}

	var seen []string
	var cursor *storage.Cursor
	for {
		page, err := s.FutureHolding(ctx, "room-1", start.Add(-time.Minute), cursor, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, r := range page {
			seen = append(seen, r.ID)
		}
		last := page[len(page)-1]
		cursor = &storage.Cursor{Start: last.Interval.Start, ID: last.ID}
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)

	holding, err := s.ListHolding(ctx, "room-1", domain.Interval{Start: start.Add(90 * time.Minute), End: start.Add(5 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, holding, 2)
	assert.Equal(t, "b", holding[0].ID)
}

func TestBookingStore_Blocks(t *testing.T) {
	ctx := context.Background()
	s := newBookingStore(t)

	rec, err := domain.ParseRecurrence("FREQ=WEEKLY;COUNT=4")
	require.NoError(t, err)
	b, err := domain.NewBlock("blk-1", "tenant-1", "room-1", domain.Interval{Start: start, End: start.Add(time.Hour)}, false, time.UTC, rec, start)
	require.NoError(t, err)
	require.NoError(t, s.CreateBlock(ctx, b))

	active, err := s.ListActiveBlocks(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.NotNil(t, active[0].Recurrence)
	assert.Equal(t, 4, active[0].Recurrence.Count)

	require.NoError(t, b.Deactivate(start))
	require.NoError(t, s.UpdateBlock(ctx, b, 1))

	active, err = s.ListActiveBlocks(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestResourceStore_RoundTripAndAssociations(t *testing.T) {
	ctx := context.Background()
	s, err := NewResourceStore(t.TempDir() + "/resources.db")
	require.NoError(t, err)
	defer s.Close()

	hours := domain.OpeningHours{time.Wednesday: {Open: domain.Clock(8, 0), Close: domain.Clock(22, 0)}}
	res, err := domain.NewResource("room-1", "tenant-1", "Hall A", hours, start)
	require.NoError(t, err)
	res.MaxDuration = 4 * time.Hour
	require.NoError(t, s.CreateResource(ctx, res))

	got, err := s.GetResource(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, hours, got.OpeningHours)
	assert.Equal(t, 4*time.Hour, got.MaxDuration)

	require.NoError(t, res.Publish(start))
	require.NoError(t, s.UpdateResource(ctx, res, 1))
	assert.True(t, errors.Is(s.UpdateResource(ctx, res, 1), storage.ErrVersionConflict))

	rule := &domain.PriceRule{ID: "p-1", TenantID: "tenant-1", ResourceID: "room-1", Label: "hourly", Amount: decimal.RequireFromString("450.50"), Currency: "NOK"}
	require.NoError(t, s.CreatePriceRule(ctx, rule))
	rules, err := s.ListPriceRules(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rule.Amount.Equal(rules[0].Amount))

	require.NoError(t, s.CreateAmenity(ctx, &domain.Amenity{ID: "a-1", TenantID: "tenant-1", ResourceID: "room-1", Name: "projector"}))
	require.NoError(t, s.DeleteAmenity(ctx, "a-1"))
	assert.True(t, errors.Is(s.DeleteAmenity(ctx, "a-1"), storage.ErrNotFound))
}
