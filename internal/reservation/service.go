// Package reservation serializes reservation writes per resource: every
// conflict check and the write it guards run under the resource's lock, and
// every transition is a compare-and-swap on the reservation version.
package reservation

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/Youmanvi/bookingengine/internal/availability"
	"github.com/Youmanvi/bookingengine/internal/conflict"
	"github.com/Youmanvi/bookingengine/internal/domain"
	"github.com/Youmanvi/bookingengine/internal/lock"
	apperrors "github.com/Youmanvi/bookingengine/internal/pkg/errors"
	"github.com/Youmanvi/bookingengine/internal/storage"
)

// SubmitRequest carries an already-authorized submission
type SubmitRequest struct {
	ID             string
	TenantID       string
	ResourceID     string
	RequesterID    string
	Interval       domain.Interval
	IdempotencyKey string
}

// Transition is the outcome of a committed status change
type Transition struct {
	Before *domain.Reservation
	After  *domain.Reservation
}

type Service struct {
	store     storage.BookingStore
	resources storage.ResourceStore
	locker    lock.Locker
}

func NewService(store storage.BookingStore, resources storage.ResourceStore, locker lock.Locker) *Service {
	return &Service{store: store, resources: resources, locker: locker}
}

// LockKey is the lock guarding a resource's reservation set
func LockKey(resourceID string) string {
	return "resource:" + resourceID
}

// Submit creates a reservation. The resource is read under its lock so a
// concurrent archive either sees the new reservation or rejects it. created
// is false when an earlier submission with the same idempotency key and
// arguments is returned instead.
func (s *Service) Submit(ctx context.Context, req SubmitRequest, now time.Time) (r *domain.Reservation, created bool, err error) {
	if err := req.Interval.Validate(); err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrInvalidWindow, err.Error(), nil)
	}

	release, err := s.locker.Lock(ctx, LockKey(req.ResourceID))
	if err != nil {
		return nil, false, apperrors.Storage("lock resource", err)
	}
	defer release()

	res, err := s.resources.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, false, storage.Classify("get resource", err)
	}
	if res.TenantID != req.TenantID {
		return nil, false, apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("resource %s", req.ResourceID), nil)
	}
	if req.IdempotencyKey != "" {
		existing, err := s.replay(ctx, res.ID, req)
		if err != nil || existing != nil {
			return existing, false, err
		}
	}
	if err := CheckBookable(res, req.Interval); err != nil {
		return nil, false, err
	}

	if err := s.ensureFree(ctx, res.ID, req.Interval, ""); err != nil {
		return nil, false, err
	}

	r, err = domain.NewReservation(req.ID, req.TenantID, res.ID, req.RequesterID, req.Interval, res.RequiresApproval, now)
	if err != nil {
		if apperrors.CodeOf(err) != "" {
			return nil, false, err
		}
		return nil, false, apperrors.Wrap(apperrors.ErrValidationFailed, err.Error(), nil)
	}
	r.IdempotencyKey = req.IdempotencyKey

	if err := s.store.CreateReservation(ctx, r); err != nil {
		// The same key may have been claimed on another resource's lock meanwhile.
		if stderrors.Is(err, storage.ErrAlreadyExists) && req.IdempotencyKey != "" {
			existing, replayErr := s.replay(ctx, res.ID, req)
			if replayErr != nil || existing != nil {
				return existing, false, replayErr
			}
		}
		return nil, false, storage.Classify("create reservation", err)
	}

	return r, true, nil
}

// CheckBookable runs the checks a submission must pass before the conflict check
func CheckBookable(res *domain.Resource, iv domain.Interval) error {
	if !res.IsBookable() {
		return apperrors.Wrap(apperrors.ErrResourceNotBookable,
			fmt.Sprintf("resource %s is %s", res.ID, res.Status), nil)
	}
	if err := res.CheckDuration(iv.Duration()); err != nil {
		return err
	}
	if !availability.WithinOpeningHours(res, iv) {
		return apperrors.Wrap(apperrors.ErrOutsideOpeningHours,
			fmt.Sprintf("%s is outside the opening hours of resource %s", iv, res.ID), nil)
	}
	return nil
}

// replay returns the reservation previously submitted under req's key, nil if there is none
func (s *Service) replay(ctx context.Context, resourceID string, req SubmitRequest) (*domain.Reservation, error) {
	existing, err := s.store.FindByIdempotencyKey(ctx, req.TenantID, req.IdempotencyKey)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Classify("find by idempotency key", err)
	}
	if !existing.SameRequest(resourceID, req.RequesterID, req.Interval) {
		return nil, apperrors.Wrap(apperrors.ErrIdempotencyReused,
			fmt.Sprintf("idempotency key %q belongs to reservation %s", req.IdempotencyKey, existing.ID), nil)
	}
	return existing, nil
}

// ensureFree fails with SlotUnavailable when iv overlaps a holding reservation or active block
func (s *Service) ensureFree(ctx context.Context, resourceID string, iv domain.Interval, excludeID string) error {
	reservations, err := s.store.ListHolding(ctx, resourceID, iv)
	if err != nil {
		return storage.Classify("list holding reservations", err)
	}
	blocks, err := s.store.ListActiveBlocks(ctx, resourceID)
	if err != nil {
		return storage.Classify("list active blocks", err)
	}

	q := conflict.Query{ResourceID: resourceID, Candidate: iv, ExcludeID: excludeID}
	refs := conflict.FindConflicts(q, reservations, blocks)
	if len(refs) == 0 {
		return nil
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = string(ref.Kind) + ":" + ref.ID
	}
	return apperrors.Wrap(apperrors.ErrSlotUnavailable,
		fmt.Sprintf("%s conflicts with %s", iv, strings.Join(ids, ", ")), nil)
}

// Approve confirms a pending reservation after re-checking for conflicts.
// On conflict the reservation stays pending.
func (s *Service) Approve(ctx context.Context, id, approverID string, expectedVersion int64, now time.Time) (*Transition, error) {
	return s.transition(ctx, id, expectedVersion, true, func(r *domain.Reservation) error {
		return r.Approve(approverID, now)
	})
}

func (s *Service) Reject(ctx context.Context, id, approverID, reason string, expectedVersion int64, now time.Time) (*Transition, error) {
	return s.transition(ctx, id, expectedVersion, false, func(r *domain.Reservation) error {
		return r.Reject(approverID, reason, now)
	})
}

func (s *Service) Cancel(ctx context.Context, id, actorID, reason string, expectedVersion int64, now time.Time) (*Transition, error) {
	return s.transition(ctx, id, expectedVersion, false, func(r *domain.Reservation) error {
		return r.Cancel(actorID, reason, now)
	})
}

func (s *Service) Complete(ctx context.Context, id, actorID string, expectedVersion int64, enforceTiming bool, now time.Time) (*Transition, error) {
	return s.transition(ctx, id, expectedVersion, false, func(r *domain.Reservation) error {
		return r.Complete(actorID, now, enforceTiming)
	})
}

func (s *Service) MarkNoShow(ctx context.Context, id, actorID string, expectedVersion int64, enforceTiming bool, now time.Time) (*Transition, error) {
	return s.transition(ctx, id, expectedVersion, false, func(r *domain.Reservation) error {
		return r.MarkNoShow(actorID, now, enforceTiming)
	})
}

// transition loads the reservation once unlocked to learn its resource,
// then reloads it under the resource lock before applying the change.
func (s *Service) transition(ctx context.Context, id string, expectedVersion int64, recheck bool, apply func(*domain.Reservation) error) (*Transition, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, storage.Classify("get reservation", err)
	}

	release, err := s.locker.Lock(ctx, LockKey(r.ResourceID))
	if err != nil {
		return nil, apperrors.Storage("lock resource", err)
	}
	defer release()

	r, err = s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, storage.Classify("get reservation", err)
	}
	if err := r.CheckVersion(expectedVersion); err != nil {
		return nil, err
	}

	before := *r
	if err := apply(r); err != nil {
		return nil, err
	}
	if recheck {
		if err := s.ensureFree(ctx, r.ResourceID, r.Interval, r.ID); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateReservation(ctx, r, expectedVersion); err != nil {
		return nil, storage.Classify("update reservation", err)
	}

	return &Transition{Before: &before, After: r}, nil
}

// Get returns a reservation by ID
func (s *Service) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, storage.Classify("get reservation", err)
	}
	return r, nil
}
