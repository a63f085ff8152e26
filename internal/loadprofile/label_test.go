package loadprofile

import (
	"errors"
	"testing"
	"time"
)

func TestLabelTimestamp(t *testing.T) {
	date := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		mode  LabelMode
		label string
		want  time.Time
	}{
		{LabelIntervalStart, "0:30", time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)},
		{LabelIntervalStart, "1:00", time.Date(2020, 3, 1, 0, 30, 0, 0, time.UTC)},
		{LabelIntervalStart, "12:30", time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)},
		{LabelIntervalStart, "24:00", time.Date(2020, 3, 1, 23, 30, 0, 0, time.UTC)},
		{LabelIntervalStart, "24:30", time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)},
		{LabelIntervalStart, "0:00", time.Date(2020, 3, 1, 23, 30, 0, 0, time.UTC)},
		{LabelIntervalEnd, "0:30", time.Date(2020, 3, 1, 0, 30, 0, 0, time.UTC)},
		{LabelIntervalEnd, "23:30", time.Date(2020, 3, 1, 23, 30, 0, 0, time.UTC)},
		{LabelIntervalEnd, "24:00", time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		got, err := tc.mode.Timestamp(date, tc.label)
		if err != nil {
			t.Errorf("%s %q: unexpected error: %v", tc.mode, tc.label, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("%s %q = %v, want %v", tc.mode, tc.label, got, tc.want)
		}
	}
}

func TestLabelTimestampRejectsBadLabels(t *testing.T) {
	date := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, label := range []string{"", "1230", "25:00", "-1:00", "1:15", "1:3", "a:30", "1:xx"} {
		if _, err := LabelIntervalStart.Timestamp(date, label); !errors.Is(err, ErrFormat) {
			t.Errorf("label %q: expected ErrFormat, got %v", label, err)
		}
	}
}

func TestParseLabelMode(t *testing.T) {
	for in, want := range map[string]LabelMode{"": LabelIntervalStart, "start": LabelIntervalStart, " END ": LabelIntervalEnd} {
		got, err := ParseLabelMode(in)
		if err != nil || got != want {
			t.Errorf("ParseLabelMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseLabelMode("middle"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
