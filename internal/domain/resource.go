package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

// ResourceStatus represents the lifecycle status of a resource
type ResourceStatus string

const (
	ResourceStatusDraft       ResourceStatus = "draft"
	ResourceStatusPublished   ResourceStatus = "published"
	ResourceStatusUnpublished ResourceStatus = "unpublished"
	ResourceStatusArchived    ResourceStatus = "archived"
	ResourceStatusDeleted     ResourceStatus = "deleted"
)

// ClockTime is a wall-clock time of day in minutes after midnight. 24:00 is allowed as a closing time.
type ClockTime int

// Clock builds a ClockTime from hours and minutes
func Clock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClock parses "HH:MM"
func ParseClock(s string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h*60+m > 24*60 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return Clock(h, m), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalJSON encodes as "HH:MM"
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes "HH:MM"
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// DayHours is the open period of a single weekday
type DayHours struct {
	Open  ClockTime `json:"open"`
	Close ClockTime `json:"close"`
}

// OpeningHours maps weekdays to their open period. A missing weekday is closed.
type OpeningHours map[time.Weekday]DayHours

// Validate rejects periods that close before they open
func (oh OpeningHours) Validate() error {
	for day, hours := range oh {
		if hours.Open < 0 || hours.Close > Clock(24, 0) || hours.Close <= hours.Open {
			return fmt.Errorf("invalid opening hours for %s: %s-%s", day, hours.Open, hours.Close)
		}
	}
	return nil
}

// On returns the open interval for the calendar day containing day, evaluated in day's location
func (oh OpeningHours) On(day time.Time) (Interval, bool) {
	hours, ok := oh[day.Weekday()]
	if !ok {
		return Interval{}, false
	}
	y, m, d := day.Date()
	loc := day.Location()
	return Interval{
		Start: time.Date(y, m, d, 0, int(hours.Open), 0, 0, loc),
		End:   time.Date(y, m, d, 0, int(hours.Close), 0, 0, loc),
	}, true
}

// Resource is a bookable entity
type Resource struct {
	ID               string         `json:"id"`
	TenantID         string         `json:"tenant_id"`
	Name             string         `json:"name"`
	TimeZone         string         `json:"time_zone,omitempty"`
	OpeningHours     OpeningHours   `json:"opening_hours,omitempty"`
	SlotMinutes      int            `json:"slot_minutes"`
	MinDuration      time.Duration  `json:"min_duration"`
	MaxDuration      time.Duration  `json:"max_duration"`
	Capacity         int            `json:"capacity"`
	RequiresApproval bool           `json:"requires_approval"`
	Status           ResourceStatus `json:"status"`
	Version          int64          `json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// NewResource creates a draft resource
func NewResource(id, tenantID, name string, hours OpeningHours, now time.Time) (*Resource, error) {
	r := &Resource{
		ID:           id,
		TenantID:     tenantID,
		Name:         name,
		OpeningHours: hours,
		SlotMinutes:  30,
		Status:       ResourceStatusDraft,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate validates the resource definition
func (r *Resource) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("resource ID cannot be empty")
	}
	if r.TenantID == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}
	if r.SlotMinutes < 0 {
		return fmt.Errorf("slot granularity cannot be negative")
	}
	if r.MinDuration < 0 || r.MaxDuration < 0 {
		return fmt.Errorf("duration bounds cannot be negative")
	}
	if r.MaxDuration > 0 && r.MinDuration > r.MaxDuration {
		return fmt.Errorf("minimum duration %s exceeds maximum %s", r.MinDuration, r.MaxDuration)
	}
	if r.TimeZone != "" {
		if _, err := time.LoadLocation(r.TimeZone); err != nil {
			return fmt.Errorf("unknown time zone %q: %w", r.TimeZone, err)
		}
	}
	return r.OpeningHours.Validate()
}

// Location returns the resource's time zone, UTC when unset
func (r *Resource) Location() *time.Location {
	if r.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlotGranularity returns the slot size, zero when snapping is disabled
func (r *Resource) SlotGranularity() time.Duration {
	return time.Duration(r.SlotMinutes) * time.Minute
}

// IsBookable reports whether new reservations may be submitted
func (r *Resource) IsBookable() bool {
	return r.Status == ResourceStatusPublished
}

// CheckDuration enforces the configured minimum and maximum
func (r *Resource) CheckDuration(d time.Duration) error {
	if r.MinDuration > 0 && d < r.MinDuration {
		return apperrors.Wrap(apperrors.ErrDurationOutOfRange,
			fmt.Sprintf("duration %s is below minimum %s", d, r.MinDuration), nil)
	}
	if r.MaxDuration > 0 && d > r.MaxDuration {
		return apperrors.Wrap(apperrors.ErrDurationOutOfRange,
			fmt.Sprintf("duration %s exceeds maximum %s", d, r.MaxDuration), nil)
	}
	return nil
}

var resourceTransitions = map[ResourceStatus][]ResourceStatus{
	ResourceStatusDraft:       {ResourceStatusPublished, ResourceStatusArchived, ResourceStatusDeleted},
	ResourceStatusPublished:   {ResourceStatusUnpublished, ResourceStatusArchived},
	ResourceStatusUnpublished: {ResourceStatusPublished, ResourceStatusArchived, ResourceStatusDeleted},
	ResourceStatusArchived:    {ResourceStatusUnpublished, ResourceStatusDeleted},
}

func (r *Resource) transition(to ResourceStatus, now time.Time) error {
	for _, allowed := range resourceTransitions[r.Status] {
		if allowed == to {
			r.Status = to
			r.Version++
			r.UpdatedAt = now
			return nil
		}
	}
	return apperrors.Wrap(apperrors.ErrInvalidTransition,
		fmt.Sprintf("resource %s cannot move from %s to %s", r.ID, r.Status, to), nil)
}

// Publish opens the resource for booking
func (r *Resource) Publish(now time.Time) error {
	return r.transition(ResourceStatusPublished, now)
}

// Unpublish hides the resource without touching its reservations
func (r *Resource) Unpublish(now time.Time) error {
	return r.transition(ResourceStatusUnpublished, now)
}

// Archive withdraws the resource
func (r *Resource) Archive(now time.Time) error {
	return r.transition(ResourceStatusArchived, now)
}

// Restore brings an archived resource back as unpublished; the owner republishes it explicitly
func (r *Resource) Restore(now time.Time) error {
	if r.Status != ResourceStatusArchived {
		return apperrors.Wrap(apperrors.ErrInvalidTransition,
			fmt.Sprintf("resource %s is %s, only archived resources can be restored", r.ID, r.Status), nil)
	}
	return r.transition(ResourceStatusUnpublished, now)
}

// CloneAs returns a draft copy under a new identity
func (r *Resource) CloneAs(id, name string, now time.Time) *Resource {
	hours := make(OpeningHours, len(r.OpeningHours))
	for day, h := range r.OpeningHours {
		hours[day] = h
	}
	clone := *r
	clone.ID = id
	clone.Name = name
	clone.OpeningHours = hours
	clone.Status = ResourceStatusDraft
	clone.Version = 1
	clone.CreatedAt = now
	clone.UpdatedAt = now
	return &clone
}

// PriceRule is a pricing association of a resource. Amounts are carried, never computed, here.
type PriceRule struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	ResourceID string          `json:"resource_id"`
	Label      string          `json:"label"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

// Amenity is an amenity association of a resource
type Amenity struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	ResourceID string `json:"resource_id"`
	Name       string `json:"name"`
}
