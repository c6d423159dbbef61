// Package storage declares the partition stores the engine writes to. Bookings (reservations and blocks)
// and resources (resources, price rules, amenities) live in independent partitions with no shared transaction.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Youmanvi/bookingengine/internal/domain"
	apperrors "github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

var (
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrVersionConflict = errors.New("entity version changed")
)

// Cursor is a keyset position over reservations ordered by (start, id)
type Cursor struct {
	Start time.Time
	ID    string
}

// After reports whether r sorts strictly after the cursor
func (c *Cursor) After(r *domain.Reservation) bool {
	if c == nil {
		return true
	}
	if !r.Interval.Start.Equal(c.Start) {
		return r.Interval.Start.After(c.Start)
	}
	return r.ID > c.ID
}

// ResourceStore is the resources partition
type ResourceStore interface {
	CreateResource(ctx context.Context, r *domain.Resource) error
	GetResource(ctx context.Context, id string) (*domain.Resource, error)
	// UpdateResource writes r only if the stored version equals expectedVersion
	UpdateResource(ctx context.Context, r *domain.Resource, expectedVersion int64) error
	DeleteResource(ctx context.Context, id string) error

	CreatePriceRule(ctx context.Context, p *domain.PriceRule) error
	ListPriceRules(ctx context.Context, resourceID string) ([]domain.PriceRule, error)
	DeletePriceRule(ctx context.Context, id string) error

	CreateAmenity(ctx context.Context, a *domain.Amenity) error
	ListAmenities(ctx context.Context, resourceID string) ([]domain.Amenity, error)
	DeleteAmenity(ctx context.Context, id string) error
}

// ReservationStore is the reservation half of the bookings partition
type ReservationStore interface {
	// CreateReservation fails with ErrAlreadyExists on a duplicate ID or (tenant, idempotency key)
	CreateReservation(ctx context.Context, r *domain.Reservation) error
	GetReservation(ctx context.Context, id string) (*domain.Reservation, error)
	FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*domain.Reservation, error)
	// UpdateReservation writes r only if the stored version equals expectedVersion
	UpdateReservation(ctx context.Context, r *domain.Reservation, expectedVersion int64) error
	// ListHolding returns pending and confirmed reservations of a resource overlapping window
	ListHolding(ctx context.Context, resourceID string, window domain.Interval) ([]domain.Reservation, error)
	// FutureHolding pages pending and confirmed reservations starting after from, ordered by (start, id)
	FutureHolding(ctx context.Context, resourceID string, from time.Time, after *Cursor, limit int) ([]domain.Reservation, error)
}

// BlockStore is the block half of the bookings partition
type BlockStore interface {
	CreateBlock(ctx context.Context, b *domain.Block) error
	GetBlock(ctx context.Context, id string) (*domain.Block, error)
	UpdateBlock(ctx context.Context, b *domain.Block, expectedVersion int64) error
	ListActiveBlocks(ctx context.Context, resourceID string) ([]domain.Block, error)
}

// BookingStore is the full bookings partition
type BookingStore interface {
	ReservationStore
	BlockStore
}

// Classify maps storage sentinels onto stable engine error codes. Anything
// else is reported as a transient storage failure.
func Classify(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperrors.Wrap(apperrors.ErrNotFound, op, err)
	case errors.Is(err, ErrVersionConflict):
		return apperrors.Wrap(apperrors.ErrStaleVersion, op, err)
	default:
		return apperrors.Storage(op, err)
	}
}
