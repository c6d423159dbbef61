// Package audit records one immutable entry per committed state change
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EntityType names the kind of entity an entry describes
type EntityType string

const (
	EntityReservation EntityType = "reservation"
	EntityResource    EntityType = "resource"
	EntityBlock       EntityType = "block"
	EntityPriceRule   EntityType = "price_rule"
	EntityAmenity     EntityType = "amenity"
)

// ErrDuplicateEntry is returned when an entry ID was already recorded. A
// retried append that hits it has already succeeded.
var ErrDuplicateEntry = errors.New("audit entry already recorded")

// Entry is an immutable record of one state-changing operation
type Entry struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	TenantID   string          `json:"tenant_id"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"`
	Actor      string          `json:"actor,omitempty"`
	Component  string          `json:"component,omitempty"`
	TraceID    string          `json:"trace_id,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

// NewEntry creates an entry stamped with a fresh ID
func NewEntry(tenantID string, entityType EntityType, entityID, action, actor string, at time.Time) *Entry {
	return &Entry{
		ID:         uuid.NewString(),
		Timestamp:  at,
		TenantID:   tenantID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
	}
}

// WithComponent records which engine component performed the change
func (e *Entry) WithComponent(name string) *Entry {
	e.Component = name
	return e
}

// WithTraceID correlates the entry with a trace
func (e *Entry) WithTraceID(traceID string) *Entry {
	e.TraceID = traceID
	return e
}

// WithSnapshots attaches JSON snapshots of the entity; nil values are skipped
func (e *Entry) WithSnapshots(before, after any) *Entry {
	if before != nil {
		if data, err := json.Marshal(before); err == nil {
			e.Before = data
		}
	}
	if after != nil {
		if data, err := json.Marshal(after); err == nil {
			e.After = data
		}
	}
	return e
}

// Repository appends entries and reads them back. Entries are never updated or deleted.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]*Entry, error)
}
