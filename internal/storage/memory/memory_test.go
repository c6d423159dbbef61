package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Youmanvi/bookingengine/internal/domain"
	"github.com/Youmanvi/bookingengine/internal/storage"
)

func TestBookingStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewBookingStore()
	start := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

	r, err := domain.NewReservation("res-1", "tenant-1", "room-1", "user-1", domain.Interval{Start: start, End: start.Add(time.Hour)}, false, start)
	require.NoError(t, err)
	require.NoError(t, s.CreateReservation(ctx, r))

	got, err := s.GetReservation(ctx, "res-1")
	require.NoError(t, err)
	got.Status = domain.ReservationStatusCancelled

	again, err := s.GetReservation(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, again.Status)

	assert.True(t, errors.Is(s.UpdateReservation(ctx, got, 7), storage.ErrVersionConflict))
}

func TestBookingStore_FutureHoldingSkipsPastAndTerminal(t *testing.T) {
	ctx := context.Background()
	s := NewBookingStore()
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	add := func(id string, offset time.Duration, status domain.ReservationStatus) {
		r, err := domain.NewReservation(id, "tenant-1", "room-1", "user-1", domain.Interval{Start: now.Add(offset), End: now.Add(offset + time.Hour)}, false, now)
		require.NoError(t, err)
		r.Status = status
		require.NoError(t, s.CreateReservation(ctx, r))
	}
	add("past", -3*time.Hour, domain.ReservationStatusConfirmed)
	add("future", 3*time.Hour, domain.ReservationStatusConfirmed)
	add("pending", 5*time.Hour, domain.ReservationStatusPending)
	add("cancelled", 4*time.Hour, domain.ReservationStatusCancelled)

	page, err := s.FutureHolding(ctx, "room-1", now, nil, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "future", page[0].ID)
	assert.Equal(t, "pending", page[1].ID)

	page, err = s.FutureHolding(ctx, "room-1", now, &storage.Cursor{Start: page[0].Interval.Start, ID: page[0].ID}, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "pending", page[0].ID)
}

func TestResourceStore_DeleteAndMissing(t *testing.T) {
	ctx := context.Background()
	s := NewResourceStore()
	res, err := domain.NewResource("room-1", "tenant-1", "Hall A", nil, time.Now())
	require.NoError(t, err)

	require.NoError(t, s.CreateResource(ctx, res))
	assert.True(t, errors.Is(s.CreateResource(ctx, res), storage.ErrAlreadyExists))
	require.NoError(t, s.DeleteResource(ctx, "room-1"))

	_, err = s.GetResource(ctx, "room-1")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
