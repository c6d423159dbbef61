package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 4, hour, minute, 0, 0, time.UTC)
}

func TestInterval_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"touching end to start", Interval{at(8, 0), at(10, 0)}, Interval{at(10, 0), at(12, 0)}, false},
		{"partial overlap", Interval{at(8, 0), at(10, 30)}, Interval{at(10, 0), at(12, 0)}, true},
		{"contained", Interval{at(8, 0), at(12, 0)}, Interval{at(9, 0), at(10, 0)}, true},
		{"identical", Interval{at(8, 0), at(9, 0)}, Interval{at(8, 0), at(9, 0)}, true},
		{"disjoint", Interval{at(8, 0), at(9, 0)}, Interval{at(11, 0), at(12, 0)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a), "overlap must be symmetric")
		})
	}
}

func TestNewInterval_RejectsZeroLengthAndInverted(t *testing.T) {
	_, err := NewInterval(at(10, 0), at(10, 0))
	assert.Error(t, err)
	_, err = NewInterval(at(11, 0), at(10, 0))
	assert.Error(t, err)
	_, err = NewInterval(at(10, 0), at(11, 0))
	assert.NoError(t, err)
}

func TestInterval_RejectsInstantsOutsideStorableRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
	}{
		{"end after 2262", time.Date(2262, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2263, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"far future", time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(3000, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"start before 1678", time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInterval(tt.start, tt.end)
			assert.Error(t, err)
		})
	}

	_, err := NewInterval(time.Date(2262, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2262, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err, "the last storable year is still accepted")
}

func TestMergeIntervals(t *testing.T) {
	in := []Interval{
		{at(12, 0), at(13, 0)},
		{at(8, 0), at(9, 0)},
		{at(9, 0), at(10, 0)},
		{at(12, 30), at(14, 0)},
	}

	merged := MergeIntervals(in)
	require.Len(t, merged, 2)
	assert.Equal(t, Interval{at(8, 0), at(10, 0)}, merged[0])
	assert.Equal(t, Interval{at(12, 0), at(14, 0)}, merged[1])
	assert.Equal(t, at(12, 0), in[0].Start, "input must not be reordered")
}

func TestBlock_RecurringOccurrences(t *testing.T) {
	rec, err := ParseRecurrence("FREQ=WEEKLY;INTERVAL=1;COUNT=3")
	require.NoError(t, err)

	b, err := NewBlock("blk-1", "tenant-1", "room-1", Interval{at(18, 0), at(20, 0)}, false, time.UTC, rec, at(0, 0))
	require.NoError(t, err)

	window := Interval{at(0, 0), at(0, 0).AddDate(0, 1, 0)}
	occ := b.Occurrences(window)
	require.Len(t, occ, 3)
	assert.Equal(t, at(18, 0).AddDate(0, 0, 14), occ[2].Start)

	end, bounded := b.SeriesEnd()
	assert.True(t, bounded)
	assert.Equal(t, at(20, 0).AddDate(0, 0, 14), end)
}

func TestBlock_UnboundedSeriesOnlyExpandsInsideWindow(t *testing.T) {
	rec, err := ParseRecurrence("FREQ=DAILY")
	require.NoError(t, err)

	b, err := NewBlock("blk-1", "tenant-1", "room-1", Interval{at(12, 0), at(13, 0)}, false, time.UTC, rec, at(0, 0))
	require.NoError(t, err)

	far := at(0, 0).AddDate(1, 0, 0)
	occ := b.Occurrences(Interval{far, far.AddDate(0, 0, 2)})
	assert.Len(t, occ, 2)
	assert.True(t, b.EndsAfter(far))
}

func TestNewBlock_AllDayWidensToMidnight(t *testing.T) {
	b, err := NewBlock("blk-1", "tenant-1", "room-1", Interval{at(9, 0), at(15, 0)}, true, time.UTC, nil, at(0, 0))
	require.NoError(t, err)
	assert.Equal(t, at(0, 0), b.Interval.Start)
	assert.Equal(t, at(0, 0).AddDate(0, 0, 1), b.Interval.End)
}

func TestResource_ArchiveRestore(t *testing.T) {
	r, err := NewResource("room-1", "tenant-1", "Hall A", OpeningHours{time.Monday: {Clock(8, 0), Clock(22, 0)}}, at(0, 0))
	require.NoError(t, err)
	require.NoError(t, r.Publish(at(1, 0)))
	require.NoError(t, r.Archive(at(2, 0)))
	assert.False(t, r.IsBookable())
	assert.Error(t, r.Archive(at(3, 0)))

	require.NoError(t, r.Restore(at(4, 0)))
	assert.Equal(t, ResourceStatusUnpublished, r.Status)
	assert.Equal(t, int64(4), r.Version)
}
