package feature

import (
	"sort"
	"time"
)

// NoHolidaySentinel is returned by DaysToNextHoliday when the calendar has
// no holiday at or after the given date. Callers treat it as "far away",
// not as an error.
const NoHolidaySentinel = 365

// holidayDates lists major US holidays. Dates are compared at day
// granularity in UTC.
var holidayDates = []string{
	// 2024
	"2024-01-01", "2024-01-15", "2024-02-19", "2024-05-27",
	"2024-07-04", "2024-09-02", "2024-10-14", "2024-11-11",
	"2024-11-28", "2024-12-25",
	// 2025
	"2025-01-01", "2025-01-20", "2025-02-17", "2025-05-26",
	"2025-07-04", "2025-09-01", "2025-10-13", "2025-11-11",
	"2025-11-27", "2025-12-25",
	// 2026
	"2026-01-01", "2026-01-19", "2026-02-16", "2026-05-25",
	"2026-07-04", "2026-09-07", "2026-10-12", "2026-11-11",
	"2026-11-26", "2026-12-25",
}

var holidays = mustParseHolidays()

func mustParseHolidays() []time.Time {
	out := make([]time.Time, 0, len(holidayDates))
	for _, s := range holidayDates {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			panic(err)
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// IsHoliday reports whether the timestamp falls on a known holiday.
func IsHoliday(tsMs int64) bool {
	day := dayOf(tsMs)
	for _, h := range holidays {
		if h.Equal(day) {
			return true
		}
	}
	return false
}

// DaysToNextHoliday returns the day difference to the nearest holiday at
// or after the timestamp, or NoHolidaySentinel if the calendar is
// exhausted.
func DaysToNextHoliday(tsMs int64) int {
	day := dayOf(tsMs)
	for _, h := range holidays {
		if !h.Before(day) {
			return int(h.Sub(day).Hours() / 24)
		}
	}
	return NoHolidaySentinel
}

// dayOf truncates a Unix ms timestamp to UTC midnight.
func dayOf(tsMs int64) time.Time {
	t := time.UnixMilli(tsMs).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
