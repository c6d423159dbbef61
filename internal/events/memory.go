package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type outboxRecord struct {
	event       *Event
	publishedAt *time.Time
	attempts    int
	lastError   string
}

// MemoryOutbox is an in-process outbox
type MemoryOutbox struct {
	mu      sync.Mutex
	records []*outboxRecord
	index   map[uuid.UUID]*outboxRecord
}

// NewMemoryOutbox creates an empty outbox
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{index: make(map[uuid.UUID]*outboxRecord)}
}

func (o *MemoryOutbox) Enqueue(_ context.Context, e *Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.index[e.ID]; ok {
		return fmt.Errorf("event %s: %w", e.ID, ErrDuplicateEvent)
	}
	cp := *e
	rec := &outboxRecord{event: &cp}
	o.records = append(o.records, rec)
	o.index[e.ID] = rec
	return nil
}

func (o *MemoryOutbox) Pending(_ context.Context, limit int) ([]*Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []*Event
	for _, rec := range o.records {
		if rec.publishedAt != nil {
			continue
		}
		cp := *rec.event
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *MemoryOutbox) MarkPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.index[id]
	if !ok {
		return fmt.Errorf("event %s not found", id)
	}
	rec.publishedAt = &at
	return nil
}

func (o *MemoryOutbox) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.index[id]
	if !ok {
		return fmt.Errorf("event %s not found", id)
	}
	rec.attempts++
	rec.lastError = reason
	return nil
}

// All returns every enqueued event in order, published or not
func (o *MemoryOutbox) All() []*Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*Event, len(o.records))
	for i, rec := range o.records {
		cp := *rec.event
		out[i] = &cp
	}
	return out
}

// ByName returns the enqueued events with the given name
func (o *MemoryOutbox) ByName(name Name) []*Event {
	var out []*Event
	for _, e := range o.All() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
