// Package conflict decides whether a candidate interval collides with existing commitments on a resource.
package conflict

import (
	"sort"

	"github.com/Youmanvi/bookingengine/internal/domain"
)

// Kind identifies what a conflicting reference points at
type Kind string

const (
	KindReservation Kind = "reservation"
	KindBlock       Kind = "block"
)

// Ref is a reference to an entity that overlaps a candidate interval
type Ref struct {
	Kind     Kind            `json:"kind"`
	ID       string          `json:"id"`
	Interval domain.Interval `json:"interval"`
}

// Query describes one conflict check
type Query struct {
	ResourceID string
	Candidate  domain.Interval
	// ExcludeID skips the reservation being re-validated
	ExcludeID string
}

// FindConflicts returns every pending/confirmed reservation and active block occurrence on the
// query's resource that strictly overlaps the candidate. Entities on other resources are ignored.
func FindConflicts(q Query, reservations []domain.Reservation, blocks []domain.Block) []Ref {
	var refs []Ref
	for _, r := range reservations {
		if r.ResourceID != q.ResourceID || r.ID == q.ExcludeID || !r.Status.Holds() {
			continue
		}
		if r.Interval.Overlaps(q.Candidate) {
			refs = append(refs, Ref{Kind: KindReservation, ID: r.ID, Interval: r.Interval})
		}
	}
	for i := range blocks {
		b := &blocks[i]
		if b.ResourceID != q.ResourceID || !b.IsActive() {
			continue
		}
		for _, occ := range b.Occurrences(q.Candidate) {
			refs = append(refs, Ref{Kind: KindBlock, ID: b.ID, Interval: occ})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if !refs[i].Interval.Start.Equal(refs[j].Interval.Start) {
			return refs[i].Interval.Start.Before(refs[j].Interval.Start)
		}
		return refs[i].ID < refs[j].ID
	})
	return refs
}

// HasConflict reports whether any commitment overlaps the candidate
func HasConflict(q Query, reservations []domain.Reservation, blocks []domain.Block) bool {
	for _, r := range reservations {
		if r.ResourceID == q.ResourceID && r.ID != q.ExcludeID && r.Status.Holds() && r.Interval.Overlaps(q.Candidate) {
			return true
		}
	}
	for i := range blocks {
		b := &blocks[i]
		if b.ResourceID == q.ResourceID && b.IsActive() && len(b.Occurrences(q.Candidate)) > 0 {
			return true
		}
	}
	return false
}
