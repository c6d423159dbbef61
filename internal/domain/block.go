package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

// BlockStatus represents the status of an administrative block
type BlockStatus string

const (
	BlockStatusActive    BlockStatus = "active"
	BlockStatusInactive  BlockStatus = "inactive"
	BlockStatusCancelled BlockStatus = "cancelled"
	BlockStatusExpired   BlockStatus = "expired"
)

// Visibility controls whether a block is shown on public calendars
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityInternal Visibility = "internal"
)

// Frequency of a recurring block
type Frequency string

const (
	FrequencyDaily  Frequency = "DAILY"
	FrequencyWeekly Frequency = "WEEKLY"
)

// Recurrence is a small RRULE subset: FREQ, INTERVAL and one of COUNT or UNTIL
type Recurrence struct {
	Freq     Frequency  `json:"freq"`
	Interval int        `json:"interval"`
	Count    int        `json:"count,omitempty"`
	Until    *time.Time `json:"until,omitempty"`
}

// ParseRecurrence parses rules such as "FREQ=WEEKLY;INTERVAL=2;COUNT=10"
func ParseRecurrence(rule string) (*Recurrence, error) {
	rec := &Recurrence{Interval: 1}
	for _, part := range strings.Split(rule, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("malformed recurrence part %q", part)
		}
		switch strings.ToUpper(key) {
		case "FREQ":
			rec.Freq = Frequency(strings.ToUpper(value))
		case "INTERVAL":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid INTERVAL %q: %w", value, err)
			}
			rec.Interval = n
		case "COUNT":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid COUNT %q: %w", value, err)
			}
			rec.Count = n
		case "UNTIL":
			until, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return nil, fmt.Errorf("invalid UNTIL %q: %w", value, err)
			}
			rec.Until = &until
		default:
			return nil, fmt.Errorf("unsupported recurrence key %q", key)
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks the rule is expandable
func (r *Recurrence) Validate() error {
	if r.Freq != FrequencyDaily && r.Freq != FrequencyWeekly {
		return fmt.Errorf("unsupported frequency %q", r.Freq)
	}
	if r.Interval < 1 {
		return fmt.Errorf("recurrence interval must be positive")
	}
	if r.Count < 0 {
		return fmt.Errorf("recurrence count cannot be negative")
	}
	if r.Count > 0 && r.Until != nil {
		return fmt.Errorf("recurrence cannot set both COUNT and UNTIL")
	}
	return nil
}

func (r *Recurrence) String() string {
	s := fmt.Sprintf("FREQ=%s;INTERVAL=%d", r.Freq, r.Interval)
	if r.Count > 0 {
		s += fmt.Sprintf(";COUNT=%d", r.Count)
	}
	if r.Until != nil {
		s += ";UNTIL=" + r.Until.UTC().Format(time.RFC3339)
	}
	return s
}

func (r *Recurrence) stepDays() int {
	if r.Freq == FrequencyWeekly {
		return 7 * r.Interval
	}
	return r.Interval
}

// Block withholds an interval of a resource from booking
type Block struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenant_id"`
	ResourceID string      `json:"resource_id"`
	Interval   Interval    `json:"interval"`
	AllDay     bool        `json:"all_day"`
	Recurrence *Recurrence `json:"recurrence,omitempty"`
	Visibility Visibility  `json:"visibility"`
	Reason     string      `json:"reason,omitempty"`
	Status     BlockStatus `json:"status"`
	Version    int64       `json:"version"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NewBlock creates an active block. All-day blocks are widened to whole days in loc.
func NewBlock(id, tenantID, resourceID string, iv Interval, allDay bool, loc *time.Location, rec *Recurrence, now time.Time) (*Block, error) {
	if id == "" || resourceID == "" {
		return nil, fmt.Errorf("block and resource IDs are required")
	}
	if err := iv.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidWindow, err.Error(), nil)
	}
	if rec != nil {
		if err := rec.Validate(); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrValidationFailed, err.Error(), nil)
		}
	}
	if allDay {
		iv = wholeDays(iv, loc)
	}
	return &Block{
		ID:         id,
		TenantID:   tenantID,
		ResourceID: resourceID,
		Interval:   iv,
		AllDay:     allDay,
		Recurrence: rec,
		Visibility: VisibilityPublic,
		Status:     BlockStatusActive,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func wholeDays(iv Interval, loc *time.Location) Interval {
	start := iv.Start.In(loc)
	end := iv.End.In(loc)
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	if endDay.Before(end) {
		endDay = endDay.AddDate(0, 0, 1)
	}
	return Interval{Start: startDay, End: endDay}
}

// IsActive reports whether the block withholds its intervals
func (b *Block) IsActive() bool {
	return b.Status == BlockStatusActive
}

// Occurrences expands the block into concrete intervals intersecting window
func (b *Block) Occurrences(window Interval) []Interval {
	if b.Recurrence == nil {
		if b.Interval.Overlaps(window) {
			return []Interval{b.Interval}
		}
		return nil
	}

	rec := b.Recurrence
	step := rec.stepDays()
	length := b.Interval.Duration()

	// Skip ahead close to the window; one step of slack absorbs DST shifts.
	k := 0
	if gap := window.Start.Sub(b.Interval.End); gap > 0 {
		k = int(gap/(time.Duration(step)*24*time.Hour)) - 1
		if k < 0 {
			k = 0
		}
	}

	var out []Interval
	for ; ; k++ {
		if rec.Count > 0 && k >= rec.Count {
			break
		}
		start := b.Interval.Start.AddDate(0, 0, k*step)
		if rec.Until != nil && start.After(*rec.Until) {
			break
		}
		if !start.Before(window.End) {
			break
		}
		occ := Interval{Start: start, End: start.Add(length)}
		if occ.Overlaps(window) {
			out = append(out, occ)
		}
	}
	return out
}

// SeriesEnd returns when the last occurrence ends; false means the series is unbounded
func (b *Block) SeriesEnd() (time.Time, bool) {
	rec := b.Recurrence
	if rec == nil {
		return b.Interval.End, true
	}
	length := b.Interval.Duration()
	if rec.Count > 0 {
		return b.Interval.Start.AddDate(0, 0, (rec.Count-1)*rec.stepDays()).Add(length), true
	}
	if rec.Until != nil {
		return rec.Until.Add(length), true
	}
	return time.Time{}, false
}

// EndsAfter reports whether any part of the series is at or after t
func (b *Block) EndsAfter(t time.Time) bool {
	end, bounded := b.SeriesEnd()
	return !bounded || end.After(t)
}

// Deactivate moves active -> inactive
func (b *Block) Deactivate(now time.Time) error {
	if b.Status != BlockStatusActive {
		return apperrors.Wrap(apperrors.ErrInvalidTransition,
			fmt.Sprintf("block %s is %s and cannot be deactivated", b.ID, b.Status), nil)
	}
	b.Status = BlockStatusInactive
	b.Version++
	b.UpdatedAt = now
	return nil
}

// Cancel moves active|inactive -> cancelled
func (b *Block) Cancel(now time.Time) error {
	if b.Status != BlockStatusActive && b.Status != BlockStatusInactive {
		return apperrors.Wrap(apperrors.ErrInvalidTransition,
			fmt.Sprintf("block %s is %s and cannot be cancelled", b.ID, b.Status), nil)
	}
	b.Status = BlockStatusCancelled
	b.Version++
	b.UpdatedAt = now
	return nil
}
