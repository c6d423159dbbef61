// Package memory provides in-process partition stores used by tests and the memory storage driver
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Youmanvi/bookingengine/internal/domain"
	"github.com/Youmanvi/bookingengine/internal/storage"
)

// BookingStore holds reservations and blocks
type BookingStore struct {
	mu           sync.RWMutex
	reservations map[string]domain.Reservation
	idempotency  map[string]string
	blocks       map[string]domain.Block
}

// NewBookingStore creates an empty bookings partition
func NewBookingStore() *BookingStore {
	return &BookingStore{
		reservations: make(map[string]domain.Reservation),
		idempotency:  make(map[string]string),
		blocks:       make(map[string]domain.Block),
	}
}

func idemKey(tenantID, key string) string {
	return tenantID + "\x00" + key
}

func (s *BookingStore) CreateReservation(_ context.Context, r *domain.Reservation) error {
	const op = "storage.memory.CreateReservation"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reservations[r.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if r.IdempotencyKey != "" {
		k := idemKey(r.TenantID, r.IdempotencyKey)
		if _, ok := s.idempotency[k]; ok {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
		s.idempotency[k] = r.ID
	}
	s.reservations[r.ID] = *r
	return nil
}

func (s *BookingStore) GetReservation(_ context.Context, id string) (*domain.Reservation, error) {
	const op = "storage.memory.GetReservation"

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return &r, nil
}

func (s *BookingStore) FindByIdempotencyKey(_ context.Context, tenantID, key string) (*domain.Reservation, error) {
	const op = "storage.memory.FindByIdempotencyKey"

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.idempotency[idemKey(tenantID, key)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	r := s.reservations[id]
	return &r, nil
}

func (s *BookingStore) UpdateReservation(_ context.Context, r *domain.Reservation, expectedVersion int64) error {
	const op = "storage.memory.UpdateReservation"

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.reservations[r.ID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%s: %w", op, storage.ErrVersionConflict)
	}
	s.reservations[r.ID] = *r
	return nil
}

func (s *BookingStore) ListHolding(_ context.Context, resourceID string, window domain.Interval) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.ResourceID == resourceID && r.Status.Holds() && r.Interval.Overlaps(window) {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out, nil
}

func (s *BookingStore) FutureHolding(_ context.Context, resourceID string, from time.Time, after *storage.Cursor, limit int) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.ResourceID != resourceID || !r.Status.Holds() || !r.Interval.Start.After(from) {
			continue
		}
		if !after.After(&r) {
			continue
		}
		out = append(out, r)
	}
	sortReservations(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortReservations(rs []domain.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].Interval.Start.Equal(rs[j].Interval.Start) {
			return rs[i].Interval.Start.Before(rs[j].Interval.Start)
		}
		return rs[i].ID < rs[j].ID
	})
}

func (s *BookingStore) CreateBlock(_ context.Context, b *domain.Block) error {
	const op = "storage.memory.CreateBlock"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[b.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	s.blocks[b.ID] = *b
	return nil
}

func (s *BookingStore) GetBlock(_ context.Context, id string) (*domain.Block, error) {
	const op = "storage.memory.GetBlock"

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blocks[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return &b, nil
}

func (s *BookingStore) UpdateBlock(_ context.Context, b *domain.Block, expectedVersion int64) error {
	const op = "storage.memory.UpdateBlock"

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.blocks[b.ID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%s: %w", op, storage.ErrVersionConflict)
	}
	s.blocks[b.ID] = *b
	return nil
}

func (s *BookingStore) ListActiveBlocks(_ context.Context, resourceID string) ([]domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Block
	for _, b := range s.blocks {
		if b.ResourceID == resourceID && b.IsActive() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ResourceStore holds resources and their associations
type ResourceStore struct {
	mu         sync.RWMutex
	resources  map[string]domain.Resource
	priceRules map[string]domain.PriceRule
	amenities  map[string]domain.Amenity
}

// NewResourceStore creates an empty resources partition
func NewResourceStore() *ResourceStore {
	return &ResourceStore{
		resources:  make(map[string]domain.Resource),
		priceRules: make(map[string]domain.PriceRule),
		amenities:  make(map[string]domain.Amenity),
	}
}

func cloneResource(r domain.Resource) domain.Resource {
	hours := make(domain.OpeningHours, len(r.OpeningHours))
	for day, h := range r.OpeningHours {
		hours[day] = h
	}
	if r.OpeningHours == nil {
		hours = nil
	}
	r.OpeningHours = hours
	return r
}

func (s *ResourceStore) CreateResource(_ context.Context, r *domain.Resource) error {
	const op = "storage.memory.CreateResource"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[r.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	s.resources[r.ID] = cloneResource(*r)
	return nil
}

func (s *ResourceStore) GetResource(_ context.Context, id string) (*domain.Resource, error) {
	const op = "storage.memory.GetResource"

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	r = cloneResource(r)
	return &r, nil
}

func (s *ResourceStore) UpdateResource(_ context.Context, r *domain.Resource, expectedVersion int64) error {
	const op = "storage.memory.UpdateResource"

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.resources[r.ID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%s: %w", op, storage.ErrVersionConflict)
	}
	s.resources[r.ID] = cloneResource(*r)
	return nil
}

func (s *ResourceStore) DeleteResource(_ context.Context, id string) error {
	const op = "storage.memory.DeleteResource"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[id]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	delete(s.resources, id)
	return nil
}

func (s *ResourceStore) CreatePriceRule(_ context.Context, p *domain.PriceRule) error {
	const op = "storage.memory.CreatePriceRule"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.priceRules[p.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	s.priceRules[p.ID] = *p
	return nil
}

func (s *ResourceStore) ListPriceRules(_ context.Context, resourceID string) ([]domain.PriceRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PriceRule
	for _, p := range s.priceRules {
		if p.ResourceID == resourceID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *ResourceStore) DeletePriceRule(_ context.Context, id string) error {
	const op = "storage.memory.DeletePriceRule"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.priceRules[id]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	delete(s.priceRules, id)
	return nil
}

func (s *ResourceStore) CreateAmenity(_ context.Context, a *domain.Amenity) error {
	const op = "storage.memory.CreateAmenity"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.amenities[a.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	s.amenities[a.ID] = *a
	return nil
}

func (s *ResourceStore) ListAmenities(_ context.Context, resourceID string) ([]domain.Amenity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Amenity
	for _, a := range s.amenities {
		if a.ResourceID == resourceID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *ResourceStore) DeleteAmenity(_ context.Context, id string) error {
	const op = "storage.memory.DeleteAmenity"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.amenities[id]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	delete(s.amenities, id)
	return nil
}

var (
	_ storage.BookingStore  = (*BookingStore)(nil)
	_ storage.ResourceStore = (*ResourceStore)(nil)
)
