// Package events carries domain events from the outbox to external subscribers
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Name is the routing name of a domain event
type Name string

const (
	ReservationCreated   Name = "reservation.created"
	ReservationApproved  Name = "reservation.approved"
	ReservationRejected  Name = "reservation.rejected"
	ReservationCancelled Name = "reservation.cancelled"
	ReservationCompleted Name = "reservation.completed"
	ReservationNoShow    Name = "reservation.no_show"

	ResourceCreated     Name = "resource.created"
	ResourcePublished   Name = "resource.published"
	ResourceUnpublished Name = "resource.unpublished"
	ResourceArchived    Name = "resource.archived"
	ResourceRestored    Name = "resource.restored"

	BlockCreated     Name = "block.created"
	BlockCancelled   Name = "block.cancelled"
	BlockDeactivated Name = "block.deactivated"

	PricingCreated Name = "pricing.created"
	AmenityCreated Name = "amenity.created"
)

// Event is an at-least-once notification of a committed state change
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Name       Name            `json:"name"`
	TenantID   string          `json:"tenant_id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Status     string          `json:"status"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// New builds an event. data is the entity snapshot subscribers act on without re-querying.
func New(name Name, tenantID, entityType, entityID, status string, at time.Time, data any) (*Event, error) {
	e := &Event{
		ID:         uuid.New(),
		Name:       name,
		TenantID:   tenantID,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     status,
		Timestamp:  at,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		e.Data = raw
	}
	return e, nil
}

// ErrDuplicateEvent is returned when an event ID was already enqueued. A
// retried enqueue that hits it has already succeeded.
var ErrDuplicateEvent = errors.New("event already enqueued")

// Outbox stores events until the relay has published them
type Outbox interface {
	Enqueue(ctx context.Context, e *Event) error
	// Pending returns unpublished events in enqueue order
	Pending(ctx context.Context, limit int) ([]*Event, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Publisher delivers one serialized event keyed by its routing name
type Publisher interface {
	Publish(ctx context.Context, key, data []byte) error
}
