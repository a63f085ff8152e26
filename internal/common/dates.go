package common

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDateLayout is month/day/two-digit-year, e.g. "3/1/20".
const DefaultDateLayout = "1/2/06"

// ParseDate parses value with layout (DefaultDateLayout if empty) and returns its day in UTC.
func ParseDate(value, layout string) (time.Time, error) {
	if layout == "" {
		layout = DefaultDateLayout
	}
	t, err := time.Parse(layout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q for layout %q: %w", value, layout, err)
	}
	return Day(t), nil
}

// Day returns UTC midnight of the calendar day t falls on in its own location.
// Intervals are then laid out on a fixed 24-hour clock regardless of the caller's zone.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayRange returns every calendar day in [start, stop], ascending. It is empty when stop is
// before start.
func DayRange(start, stop time.Time) []time.Time {
	start, stop = Day(start), Day(stop)
	var days []time.Time
	for d := start; !d.After(stop); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
