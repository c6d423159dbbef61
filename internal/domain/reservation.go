package domain

import (
	"fmt"
	"time"

	apperrors "github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

// ReservationStatus represents the status of a reservation
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusRejected  ReservationStatus = "rejected"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusNoShow    ReservationStatus = "no_show"
)

// CancelReasonResourceArchived is stamped on reservations unwound by an archive cascade
const CancelReasonResourceArchived = "resource_archived"

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPending:   {ReservationStatusConfirmed, ReservationStatusRejected, ReservationStatusCancelled},
	ReservationStatusConfirmed: {ReservationStatusCancelled, ReservationStatusCompleted, ReservationStatusNoShow},
}

// IsTerminal reports whether no further transition is possible
func (s ReservationStatus) IsTerminal() bool {
	return len(reservationTransitions[s]) == 0
}

// Holds reports whether a reservation in this status occupies its interval
func (s ReservationStatus) Holds() bool {
	return s == ReservationStatusPending || s == ReservationStatusConfirmed
}

// CanTransition reports whether from -> to is a defined transition
func CanTransition(from, to ReservationStatus) bool {
	for _, allowed := range reservationTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Reservation is a claim on a resource for a time interval
type Reservation struct {
	ID             string            `json:"id"`
	TenantID       string            `json:"tenant_id"`
	ResourceID     string            `json:"resource_id"`
	RequesterID    string            `json:"requester_id"`
	Interval       Interval          `json:"interval"`
	Status         ReservationStatus `json:"status"`
	Version        int64             `json:"version"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	ApproverID     string            `json:"approver_id,omitempty"`
	ActorID        string            `json:"actor_id,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	SubmittedAt    time.Time         `json:"submitted_at"`
	ApprovedAt     *time.Time        `json:"approved_at,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewReservation creates a reservation in its initial status
func NewReservation(id, tenantID, resourceID, requesterID string, iv Interval, requiresApproval bool, now time.Time) (*Reservation, error) {
	if id == "" {
		return nil, fmt.Errorf("reservation ID cannot be empty")
	}
	if resourceID == "" {
		return nil, fmt.Errorf("resource ID cannot be empty")
	}
	if requesterID == "" {
		return nil, fmt.Errorf("requester ID cannot be empty")
	}
	if err := iv.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidWindow, err.Error(), nil)
	}

	status := ReservationStatusConfirmed
	if requiresApproval {
		status = ReservationStatusPending
	}

	return &Reservation{
		ID:          id,
		TenantID:    tenantID,
		ResourceID:  resourceID,
		RequesterID: requesterID,
		Interval:    iv,
		Status:      status,
		Version:     1,
		SubmittedAt: now,
		UpdatedAt:   now,
	}, nil
}

// CheckVersion rejects callers holding an outdated copy
func (r *Reservation) CheckVersion(expected int64) error {
	if r.Version != expected {
		return apperrors.Wrap(apperrors.ErrStaleVersion,
			fmt.Sprintf("reservation %s is at version %d, caller expected %d", r.ID, r.Version, expected), nil)
	}
	return nil
}

func (r *Reservation) transition(to ReservationStatus, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return apperrors.Wrap(apperrors.ErrInvalidTransition,
			fmt.Sprintf("reservation %s cannot move from %s to %s", r.ID, r.Status, to), nil)
	}
	r.Status = to
	r.Version++
	r.UpdatedAt = now
	return nil
}

// Approve moves pending -> confirmed. The conflict re-check is the caller's job.
func (r *Reservation) Approve(approverID string, now time.Time) error {
	if approverID == "" {
		return apperrors.Wrap(apperrors.ErrValidationFailed, "approver is required", nil)
	}
	if err := r.transition(ReservationStatusConfirmed, now); err != nil {
		return err
	}
	r.ApproverID = approverID
	approvedAt := now
	r.ApprovedAt = &approvedAt
	return nil
}

// Reject moves pending -> rejected
func (r *Reservation) Reject(approverID, reason string, now time.Time) error {
	if reason == "" {
		return apperrors.Wrap(apperrors.ErrValidationFailed, "rejection reason is required", nil)
	}
	if err := r.transition(ReservationStatusRejected, now); err != nil {
		return err
	}
	r.ApproverID = approverID
	r.Reason = reason
	return nil
}

// Cancel moves pending|confirmed -> cancelled, only before the interval has ended
func (r *Reservation) Cancel(actorID, reason string, now time.Time) error {
	if actorID == "" {
		return apperrors.Wrap(apperrors.ErrValidationFailed, "cancelling actor is required", nil)
	}
	if r.Status.Holds() && !now.Before(r.Interval.End) {
		return apperrors.Wrap(apperrors.ErrInvalidTransition,
			fmt.Sprintf("reservation %s ended at %s and can no longer be cancelled", r.ID, r.Interval.End.Format(time.RFC3339)), nil)
	}
	if err := r.transition(ReservationStatusCancelled, now); err != nil {
		return err
	}
	r.ActorID = actorID
	r.Reason = reason
	return nil
}

// Complete marks a confirmed reservation as used
func (r *Reservation) Complete(actorID string, now time.Time, enforceTiming bool) error {
	return r.close(ReservationStatusCompleted, actorID, now, enforceTiming)
}

// MarkNoShow marks a confirmed reservation as not attended
func (r *Reservation) MarkNoShow(actorID string, now time.Time, enforceTiming bool) error {
	return r.close(ReservationStatusNoShow, actorID, now, enforceTiming)
}

func (r *Reservation) close(to ReservationStatus, actorID string, now time.Time, enforceTiming bool) error {
	if enforceTiming && r.Status == ReservationStatusConfirmed && now.Before(r.Interval.Start) {
		return apperrors.Wrap(apperrors.ErrPrematureCompletion,
			fmt.Sprintf("reservation %s starts at %s", r.ID, r.Interval.Start.Format(time.RFC3339)), nil)
	}
	if err := r.transition(to, now); err != nil {
		return err
	}
	r.ActorID = actorID
	return nil
}

// SameRequest reports whether a retried submission carries identical arguments
func (r *Reservation) SameRequest(resourceID, requesterID string, iv Interval) bool {
	return r.ResourceID == resourceID && r.RequesterID == requesterID && r.Interval.Equal(iv)
}
