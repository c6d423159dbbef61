package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// EarliestInstant and LatestInstant bound the instants an interval may carry.
// Storage keeps instants as int64 Unix nanoseconds.
var (
	EarliestInstant = time.Unix(0, math.MinInt64).UTC()
	LatestInstant   = time.Unix(0, math.MaxInt64).UTC()
)

// Interval is a half-open time range [Start, End)
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval creates an interval, rejecting zero-length and inverted ranges
func NewInterval(start, end time.Time) (Interval, error) {
	iv := Interval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Validate checks that Start is strictly before End and both lie within
// [EarliestInstant, LatestInstant]
func (iv Interval) Validate() error {
	if iv.Start.IsZero() || iv.End.IsZero() {
		return fmt.Errorf("interval bounds must be set")
	}
	if iv.Start.Before(EarliestInstant) || iv.End.After(LatestInstant) {
		return fmt.Errorf("interval must lie between %s and %s",
			EarliestInstant.Format(time.RFC3339), LatestInstant.Format(time.RFC3339))
	}
	if !iv.Start.Before(iv.End) {
		return fmt.Errorf("interval start %s must be before end %s", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
	}
	return nil
}

// Duration returns the length of the interval
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports strict intersection. Touching endpoints do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies entirely inside iv
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Intersect returns the common part of two intervals
func (iv Interval) Intersect(other Interval) (Interval, bool) {
	start := iv.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := iv.End
	if other.End.Before(end) {
		end = other.End
	}
	if !start.Before(end) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// Equal compares instants, ignoring location
func (iv Interval) Equal(other Interval) bool {
	return iv.Start.Equal(other.Start) && iv.End.Equal(other.End)
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
}

// MergeIntervals sorts and coalesces overlapping or touching intervals.
// The input slice is not modified.
func MergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}

	sorted := make([]Interval, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}
