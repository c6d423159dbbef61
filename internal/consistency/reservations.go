package consistency

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/Youmanvi/bookingengine/internal/audit"
	"github.com/Youmanvi/bookingengine/internal/availability"
	"github.com/Youmanvi/bookingengine/internal/domain"
	"github.com/Youmanvi/bookingengine/internal/events"
	apperrors "github.com/Youmanvi/bookingengine/internal/pkg/errors"
	"github.com/Youmanvi/bookingengine/internal/reservation"
	"github.com/Youmanvi/bookingengine/internal/storage"
)

const (
	componentReservation = "reservation"
	componentCascade     = "cascade"
	componentResource    = "resource"
	componentBlock       = "block"

	cascadeActor = "system:cascade"
)

// SubmitReservation creates a reservation. A retry with the same idempotency
// key and arguments returns the original reservation and records nothing.
func (s *Service) SubmitReservation(ctx context.Context, req SubmitReservationRequest) (r *domain.Reservation, err error) {
	ctx, log, finish := s.begin(ctx, "SubmitReservation")
	defer func() { finish(err) }()

	if err := s.check(req); err != nil {
		s.metrics.RecordSubmission(apperrors.CodeOf(err))
		return nil, err
	}

	r, created, err := s.reservations.Submit(ctx, reservation.SubmitRequest{
		ID:             s.newID(),
		TenantID:       req.TenantID,
		ResourceID:     req.ResourceID,
		RequesterID:    req.RequesterID,
		Interval:       domain.Interval{Start: req.Start.UTC(), End: req.End.UTC()},
		IdempotencyKey: req.IdempotencyKey,
	}, s.now())
	if err != nil {
		s.metrics.RecordSubmission(apperrors.CodeOf(err))
		return nil, err
	}
	if !created {
		s.metrics.RecordSubmission("replayed")
		return r, nil
	}
	s.metrics.RecordSubmission(string(r.Status))

	log.WithReservationID(r.ID).Info().
		Str("resource_id", r.ResourceID).
		Str("status", string(r.Status)).
		Msg("reservation submitted")

	s.record(ctx, log, change{
		tenantID:   r.TenantID,
		entityType: audit.EntityReservation,
		entityID:   r.ID,
		action:     "submit",
		actor:      r.RequesterID,
		component:  componentReservation,
		event:      events.ReservationCreated,
		status:     string(r.Status),
		after:      r,
	})
	return r, nil
}

func (s *Service) ApproveReservation(ctx context.Context, req ApproveReservationRequest) (r *domain.Reservation, err error) {
	return s.transition(ctx, "ApproveReservation", "approve", events.ReservationApproved, req, req.TenantID, req.ReservationID, req.ApproverID,
		func(ctx context.Context, now time.Time) (*reservation.Transition, error) {
			return s.reservations.Approve(ctx, req.ReservationID, req.ApproverID, req.ExpectedVersion, now)
		})
}

func (s *Service) RejectReservation(ctx context.Context, req RejectReservationRequest) (r *domain.Reservation, err error) {
	return s.transition(ctx, "RejectReservation", "reject", events.ReservationRejected, req, req.TenantID, req.ReservationID, req.ApproverID,
		func(ctx context.Context, now time.Time) (*reservation.Transition, error) {
			return s.reservations.Reject(ctx, req.ReservationID, req.ApproverID, req.Reason, req.ExpectedVersion, now)
		})
}

func (s *Service) CancelReservation(ctx context.Context, req CancelReservationRequest) (r *domain.Reservation, err error) {
	return s.transition(ctx, "CancelReservation", "cancel", events.ReservationCancelled, req, req.TenantID, req.ReservationID, req.ActorID,
		func(ctx context.Context, now time.Time) (*reservation.Transition, error) {
			return s.reservations.Cancel(ctx, req.ReservationID, req.ActorID, req.Reason, req.ExpectedVersion, now)
		})
}

func (s *Service) CompleteReservation(ctx context.Context, req CloseReservationRequest) (r *domain.Reservation, err error) {
	enforce := s.policies.PolicyFor(req.TenantID).EnforceCompletionTiming
	return s.transition(ctx, "CompleteReservation", "complete", events.ReservationCompleted, req, req.TenantID, req.ReservationID, req.ActorID,
		func(ctx context.Context, now time.Time) (*reservation.Transition, error) {
			return s.reservations.Complete(ctx, req.ReservationID, req.ActorID, req.ExpectedVersion, enforce, now)
		})
}

func (s *Service) MarkNoShow(ctx context.Context, req CloseReservationRequest) (r *domain.Reservation, err error) {
	enforce := s.policies.PolicyFor(req.TenantID).EnforceCompletionTiming
	return s.transition(ctx, "MarkNoShow", "no_show", events.ReservationNoShow, req, req.TenantID, req.ReservationID, req.ActorID,
		func(ctx context.Context, now time.Time) (*reservation.Transition, error) {
			return s.reservations.MarkNoShow(ctx, req.ReservationID, req.ActorID, req.ExpectedVersion, enforce, now)
		})
}

// transition runs one caller-driven state machine transition and records it
func (s *Service) transition(
	ctx context.Context,
	op, action string,
	event events.Name,
	req any,
	tenantID, reservationID, actor string,
	apply func(context.Context, time.Time) (*reservation.Transition, error),
) (r *domain.Reservation, err error) {
	ctx, log, finish := s.begin(ctx, op)
	defer func() {
		s.metrics.RecordTransition(action, err)
		finish(err)
	}()

	if err := s.check(req); err != nil {
		return nil, err
	}
	if _, err := s.ownedReservation(ctx, tenantID, reservationID); err != nil {
		return nil, err
	}

	tr, err := apply(ctx, s.now())
	if err != nil {
		return nil, err
	}

	log.WithReservationID(reservationID).Info().
		Str("from", string(tr.Before.Status)).
		Str("to", string(tr.After.Status)).
		Int64("version", tr.After.Version).
		Msg("reservation transitioned")

	s.record(ctx, log, change{
		tenantID:   tr.After.TenantID,
		entityType: audit.EntityReservation,
		entityID:   tr.After.ID,
		action:     action,
		actor:      actor,
		component:  componentReservation,
		event:      event,
		status:     string(tr.After.Status),
		before:     tr.Before,
		after:      tr.After,
	})
	return tr.After, nil
}

// ownedReservation hides reservations of other tenants behind NOT_FOUND
func (s *Service) ownedReservation(ctx context.Context, tenantID, id string) (*domain.Reservation, error) {
	r, err := s.reservations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.TenantID != tenantID {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("reservation %s", id), nil)
	}
	return r, nil
}

func (s *Service) GetReservation(ctx context.Context, tenantID, id string) (r *domain.Reservation, err error) {
	ctx, _, finish := s.begin(ctx, "GetReservation")
	defer func() { finish(err) }()

	return s.ownedReservation(ctx, tenantID, id)
}

// CancelArchived cancels one reservation of an archived resource. It is the
// per-item step of the archive cascade and of its durable retry, so it
// tolerates reservations that were already released and resources that were
// restored in the meantime. cancelled is false when the item was skipped.
func (s *Service) CancelArchived(ctx context.Context, reservationID string) (cancelled bool, err error) {
	ctx, log, finish := s.begin(ctx, "CancelArchived")
	defer func() {
		s.metrics.RecordTransition("cascade_cancel", err)
		finish(err)
	}()

	const maxAttempts = 3
	for attempt := 1; ; attempt++ {
		r, err := s.reservations.Get(ctx, reservationID)
		if err != nil {
			return false, err
		}
		if !r.Status.Holds() {
			return false, nil
		}
		res, err := s.resources.GetResource(ctx, r.ResourceID)
		if err != nil {
			return false, storage.Classify("get resource", err)
		}
		if res.Status != domain.ResourceStatusArchived {
			log.Info().Str("reservation_id", r.ID).Str("resource_status", string(res.Status)).
				Msg("resource no longer archived, keeping reservation")
			return false, nil
		}

		tr, err := s.reservations.Cancel(ctx, r.ID, cascadeActor, domain.CancelReasonResourceArchived, r.Version, s.now())
		if apperrors.CodeOf(err) == apperrors.CodeStaleVersion && attempt < maxAttempts {
			continue
		}
		if err != nil {
			return false, err
		}

		s.record(ctx, log, change{
			tenantID:   tr.After.TenantID,
			entityType: audit.EntityReservation,
			entityID:   tr.After.ID,
			action:     "cancel",
			actor:      cascadeActor,
			component:  componentCascade,
			event:      events.ReservationCancelled,
			status:     string(tr.After.Status),
			before:     tr.Before,
			after:      tr.After,
		})
		return true, nil
	}
}

// GetAvailability returns the free and occupied slots of a resource inside
// the window. The sequence is lazy and can be ranged over more than once.
func (s *Service) GetAvailability(ctx context.Context, req AvailabilityRequest) (slots iter.Seq[availability.Slot], err error) {
	ctx, _, finish := s.begin(ctx, "GetAvailability")
	defer func() { finish(err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	window := domain.Interval{Start: req.Start.UTC(), End: req.End.UTC()}
	if err := window.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidWindow, err.Error(), nil)
	}
	policy := s.policies.PolicyFor(req.TenantID)
	if maxDays := policy.MaxAvailabilityDays; maxDays > 0 && window.Duration() > time.Duration(maxDays)*24*time.Hour {
		return nil, apperrors.Wrap(apperrors.ErrInvalidWindow,
			fmt.Sprintf("window of %s exceeds the %d day limit", window.Duration(), maxDays), nil)
	}

	res, err := s.ownedResource(ctx, req.TenantID, req.ResourceID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.bookings.ListHolding(ctx, res.ID, window)
	if err != nil {
		return nil, storage.Classify("list holding reservations", err)
	}
	blocks, err := s.bookings.ListActiveBlocks(ctx, res.ID)
	if err != nil {
		return nil, storage.Classify("list active blocks", err)
	}

	return availability.Compute(res, window, availability.Commitments(window, reservations, blocks))
}
