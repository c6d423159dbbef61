package consistency

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Youmanvi/bookingengine/internal/domain"
)

// Caller-supplied identities are already authorized; only their shape is checked here.

type SubmitReservationRequest struct {
	TenantID       string    `json:"tenant_id" validate:"required,max=64"`
	ResourceID     string    `json:"resource_id" validate:"required,max=64"`
	RequesterID    string    `json:"requester_id" validate:"required,max=64"`
	Start          time.Time `json:"start" validate:"required"`
	End            time.Time `json:"end" validate:"required"`
	IdempotencyKey string    `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

type ApproveReservationRequest struct {
	TenantID        string `json:"tenant_id" validate:"required"`
	ReservationID   string `json:"reservation_id" validate:"required"`
	ApproverID      string `json:"approver_id" validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=1"`
}

type RejectReservationRequest struct {
	TenantID        string `json:"tenant_id" validate:"required"`
	ReservationID   string `json:"reservation_id" validate:"required"`
	ApproverID      string `json:"approver_id" validate:"required"`
	Reason          string `json:"reason" validate:"required,max=512"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=1"`
}

type CancelReservationRequest struct {
	TenantID        string `json:"tenant_id" validate:"required"`
	ReservationID   string `json:"reservation_id" validate:"required"`
	ActorID         string `json:"actor_id" validate:"required"`
	Reason          string `json:"reason,omitempty" validate:"max=512"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=1"`
}

// CloseReservationRequest marks a confirmed reservation completed or no-show
type CloseReservationRequest struct {
	TenantID        string `json:"tenant_id" validate:"required"`
	ReservationID   string `json:"reservation_id" validate:"required"`
	ActorID         string `json:"actor_id" validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=1"`
}

type AvailabilityRequest struct {
	TenantID   string    `json:"tenant_id" validate:"required"`
	ResourceID string    `json:"resource_id" validate:"required"`
	Start      time.Time `json:"start" validate:"required"`
	End        time.Time `json:"end" validate:"required"`
}

type CreateResourceRequest struct {
	TenantID         string              `json:"tenant_id" validate:"required,max=64"`
	ActorID          string              `json:"actor_id" validate:"required"`
	Name             string              `json:"name" validate:"required,max=200"`
	TimeZone         string              `json:"time_zone,omitempty" validate:"omitempty,timezone"`
	OpeningHours     domain.OpeningHours `json:"opening_hours,omitempty"`
	SlotMinutes      int                 `json:"slot_minutes" validate:"gte=0,lte=1440"`
	MinDuration      time.Duration       `json:"min_duration" validate:"gte=0"`
	MaxDuration      time.Duration       `json:"max_duration" validate:"gte=0"`
	Capacity         int                 `json:"capacity" validate:"gte=0"`
	RequiresApproval bool                `json:"requires_approval"`
}

// ResourceCommand is a lifecycle change of a resource at a known version
type ResourceCommand struct {
	TenantID        string `json:"tenant_id" validate:"required"`
	ResourceID      string `json:"resource_id" validate:"required"`
	ActorID         string `json:"actor_id" validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=1"`
}

type CloneResourceRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	SourceID string `json:"source_id" validate:"required"`
	ActorID  string `json:"actor_id" validate:"required"`
	Name     string `json:"name" validate:"required,max=200"`
}

type AddPriceRuleRequest struct {
	TenantID   string          `json:"tenant_id" validate:"required"`
	ResourceID string          `json:"resource_id" validate:"required"`
	ActorID    string          `json:"actor_id" validate:"required"`
	Label      string          `json:"label" validate:"required,max=100"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency" validate:"required,len=3"`
}

type AddAmenityRequest struct {
	TenantID   string `json:"tenant_id" validate:"required"`
	ResourceID string `json:"resource_id" validate:"required"`
	ActorID    string `json:"actor_id" validate:"required"`
	Name       string `json:"name" validate:"required,max=100"`
}

type CreateBlockRequest struct {
	TenantID   string            `json:"tenant_id" validate:"required"`
	ResourceID string            `json:"resource_id" validate:"required"`
	ActorID    string            `json:"actor_id" validate:"required"`
	Start      time.Time         `json:"start" validate:"required"`
	End        time.Time         `json:"end" validate:"required"`
	AllDay     bool              `json:"all_day"`
	Recurrence string            `json:"recurrence,omitempty"`
	Visibility domain.Visibility `json:"visibility,omitempty" validate:"omitempty,oneof=public internal"`
	Reason     string            `json:"reason,omitempty" validate:"max=512"`
}

type CancelBlockRequest struct {
	TenantID        string `json:"tenant_id" validate:"required"`
	BlockID         string `json:"block_id" validate:"required"`
	ActorID         string `json:"actor_id" validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=1"`
}
