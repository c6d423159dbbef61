package audit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepository keeps entries in process
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []*Entry
	ids     map[string]struct{}
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{ids: make(map[string]struct{})}
}

func (r *MemoryRepository) Append(_ context.Context, e *Entry) error {
	if e == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[e.ID]; ok {
		return fmt.Errorf("audit entry %s: %w", e.ID, ErrDuplicateEntry)
	}
	cp := *e
	r.entries = append(r.entries, &cp)
	r.ids[e.ID] = struct{}{}
	return nil
}

func (r *MemoryRepository) ListByEntity(_ context.Context, entityType EntityType, entityID string) ([]*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0)
	for _, e := range r.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// All returns every entry in append order
func (r *MemoryRepository) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, len(r.entries))
	for i, e := range r.entries {
		cp := *e
		out[i] = &cp
	}
	return out
}
