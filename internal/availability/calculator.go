// Package availability turns opening hours and existing commitments into free and occupied slots.
package availability

import (
	"iter"
	"sort"
	"time"

	"github.com/Youmanvi/bookingengine/internal/domain"
	apperrors "github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

// Slot is one element of an availability sequence
type Slot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Occupied bool      `json:"occupied"`
}

// Interval returns the slot bounds
func (s Slot) Interval() domain.Interval {
	return domain.Interval{Start: s.Start, End: s.End}
}

// Commitments gathers the intervals that occupy a resource inside a window:
// pending/confirmed reservations and expanded active blocks.
func Commitments(window domain.Interval, reservations []domain.Reservation, blocks []domain.Block) []domain.Interval {
	busy := make([]domain.Interval, 0, len(reservations)+len(blocks))
	for _, r := range reservations {
		if r.Status.Holds() && r.Interval.Overlaps(window) {
			busy = append(busy, r.Interval)
		}
	}
	for i := range blocks {
		if blocks[i].IsActive() {
			busy = append(busy, blocks[i].Occurrences(window)...)
		}
	}
	return busy
}

// Compute returns the ordered availability of res inside window. The sequence is lazy,
// finite, side-effect free and may be ranged over any number of times.
// A resource without opening hours has no availability.
func Compute(res *domain.Resource, window domain.Interval, busy []domain.Interval) (iter.Seq[Slot], error) {
	if err := window.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidWindow, err.Error(), nil)
	}

	occupied := domain.MergeIntervals(busy)
	grid := res.SlotGranularity()
	hours := res.OpeningHours
	loc := res.Location()

	return func(yield func(Slot) bool) {
		for open, anchor := range openPeriods(hours, window, loc) {
			for _, slot := range splitPeriod(open, anchor, occupied, grid) {
				if !yield(slot) {
					return
				}
			}
		}
	}, nil
}

// Collect drains a sequence into a slice
func Collect(seq iter.Seq[Slot]) []Slot {
	var out []Slot
	for s := range seq {
		out = append(out, s)
	}
	return out
}

// Free keeps only the unoccupied slots
func Free(seq iter.Seq[Slot]) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		for s := range seq {
			if !s.Occupied && !yield(s) {
				return
			}
		}
	}
}

// WithinOpeningHours reports whether iv fits entirely inside a single day's open period
func WithinOpeningHours(res *domain.Resource, iv domain.Interval) bool {
	for open := range openPeriods(res.OpeningHours, iv, res.Location()) {
		if open.Contains(iv) {
			return true
		}
	}
	return false
}

// openPeriods yields each calendar day's open period clipped to window, paired with the
// unclipped opening instant used as the slot grid anchor. Days are evaluated independently.
func openPeriods(hours domain.OpeningHours, window domain.Interval, loc *time.Location) iter.Seq2[domain.Interval, time.Time] {
	return func(yield func(domain.Interval, time.Time) bool) {
		if len(hours) == 0 {
			return
		}
		first := window.Start.In(loc)
		day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
		for ; day.Before(window.End); day = day.AddDate(0, 0, 1) {
			open, ok := hours.On(day)
			if !ok {
				continue
			}
			clipped, ok := open.Intersect(window)
			if !ok {
				continue
			}
			if !yield(clipped, open.Start) {
				return
			}
		}
	}
}

// splitPeriod subtracts occupied intervals from one open period. Free boundaries snap
// inward to the grid anchored at the day's opening time; occupied parts are clipped as-is.
func splitPeriod(open domain.Interval, anchor time.Time, occupied []domain.Interval, grid time.Duration) []Slot {
	var out []Slot
	emitFree := func(start, end time.Time) {
		start, end = snap(start, end, anchor, grid)
		if start.Before(end) {
			out = append(out, Slot{Start: start, End: end})
		}
	}

	cursor := open.Start
	i := sort.Search(len(occupied), func(i int) bool {
		return occupied[i].End.After(open.Start)
	})
	for ; i < len(occupied) && occupied[i].Start.Before(open.End); i++ {
		busy, ok := occupied[i].Intersect(open)
		if !ok {
			continue
		}
		if busy.Start.After(cursor) {
			emitFree(cursor, busy.Start)
		}
		out = append(out, Slot{Start: busy.Start, End: busy.End, Occupied: true})
		if busy.End.After(cursor) {
			cursor = busy.End
		}
	}
	if cursor.Before(open.End) {
		emitFree(cursor, open.End)
	}
	return out
}

func snap(start, end, anchor time.Time, grid time.Duration) (time.Time, time.Time) {
	if grid <= 0 {
		return start, end
	}
	if rem := start.Sub(anchor) % grid; rem > 0 {
		start = start.Add(grid - rem)
	}
	if rem := end.Sub(anchor) % grid; rem > 0 {
		end = end.Add(-rem)
	}
	return start, end
}
