package loadprofile

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LabelMode selects how a trailing-edge interval label becomes a timestamp.
//
// The utility labels each interval by the time it ends, so the first interval of a day is
// "0:30" and the last is "24:00".
type LabelMode string

const (
	// LabelIntervalStart shifts each label back 30 minutes onto the start of its interval,
	// keeping every row on the requested date: 0:30..24:00 become 00:00..23:30.
	LabelIntervalStart LabelMode = "start"

	// LabelIntervalEnd uses the label as-is: 0:30..24:00 become 00:30 through the next
	// day's midnight.
	LabelIntervalEnd LabelMode = "end"
)

// ParseLabelMode accepts "start" or "end"; empty means LabelIntervalStart.
func ParseLabelMode(s string) (LabelMode, error) {
	switch LabelMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", LabelIntervalStart:
		return LabelIntervalStart, nil
	case LabelIntervalEnd:
		return LabelIntervalEnd, nil
	default:
		return "", fmt.Errorf("unknown label mode %q (want start or end)", s)
	}
}

// parseLabel splits an "H:MM" label. Hours run up to 24 and minutes sit on the half hour.
func parseLabel(label string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(label), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: time label %q is not H:MM", ErrFormat, label)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 24 {
		return 0, 0, fmt.Errorf("%w: time label %q has bad hour", ErrFormat, label)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || len(m) != 2 || (minute != 0 && minute != 30) {
		return 0, 0, fmt.Errorf("%w: time label %q has bad minute", ErrFormat, label)
	}
	return hour, minute, nil
}

// Timestamp converts label into a UTC instant on date's calendar day.
func (m LabelMode) Timestamp(date time.Time, label string) (time.Time, error) {
	hour, minute, err := parseLabel(label)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := date.Date()
	midnight := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)

	switch m {
	case LabelIntervalEnd:
		return midnight.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), nil
	case LabelIntervalStart, "":
		// +24h keeps the arithmetic non-negative for "0:00"; mod 24 folds it back.
		t := (24+hour)*60 + minute - 30
		return time.Date(y, mo, d, (t/60)%24, t%60, 0, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("unknown label mode %q", string(m))
	}
}
