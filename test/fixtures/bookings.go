package fixtures

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/Youmanvi/bookingengine/internal/domain"
)

const TenantID = "tenant-oslo"

// Monday is 2026-03-02 00:00 UTC
var Monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// At returns Monday plus the given days, hours and minutes
func At(days, hour, minute int) time.Time {
	return Monday.AddDate(0, 0, days).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// Slot returns the interval on Monday+days between the given whole hours
func Slot(days, fromHour, toHour int) domain.Interval {
	return domain.Interval{Start: At(days, fromHour, 0), End: At(days, toHour, 0)}
}

// EveryDay opens all week between open and close
func EveryDay(open, close int) domain.OpeningHours {
	hours := domain.OpeningHours{}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		hours[wd] = domain.DayHours{Open: domain.Clock(open, 0), Close: domain.Clock(close, 0)}
	}
	return hours
}

// Weekdays opens Monday to Friday between open and close
func Weekdays(open, close int) domain.OpeningHours {
	hours := domain.OpeningHours{}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		hours[wd] = domain.DayHours{Open: domain.Clock(open, 0), Close: domain.Clock(close, 0)}
	}
	return hours
}

// PublishedResource creates a published resource open 00:00-24:00 every day
func PublishedResource(id string, requiresApproval bool) *domain.Resource {
	res, err := domain.NewResource(id, TenantID, "Hall "+id, EveryDay(0, 24), Monday.AddDate(0, 0, -7))
	if err != nil {
		panic(err)
	}
	res.RequiresApproval = requiresApproval
	res.SlotMinutes = 0
	if err := res.Publish(Monday.AddDate(0, 0, -7)); err != nil {
		panic(err)
	}
	return res
}

// RandomInterval returns an interval within the first week, on a quarter-hour grid, 15 minutes to 4 hours long
func RandomInterval() domain.Interval {
	start := Monday.Add(time.Duration(gofakeit.IntRange(0, 7*24*4-1)) * 15 * time.Minute)
	length := time.Duration(gofakeit.IntRange(1, 16)) * 15 * time.Minute
	return domain.Interval{Start: start, End: start.Add(length)}
}
