package loadprofile

import (
	"math"
	"time"

	"github.com/goccy/go-json"
)

// Series is a continuous load series: one row per interval, one column per circuit.
// Rows are ordered by day and, within a day, by timestamp.
type Series struct {
	Circuits []string `json:"circuits"`
	Rows     []Row    `json:"rows"`

	known map[string]bool
}

// Append adds a day's rows to the end of the series. Circuits not seen before are added as
// new columns; earlier rows simply have no value for them.
func (s *Series) Append(day DayRecord) {
	if s.known == nil {
		s.known = make(map[string]bool, len(day.Circuits))
		for _, c := range s.Circuits {
			s.known[c] = true
		}
	}
	for _, c := range day.Circuits {
		if !s.known[c] {
			s.known[c] = true
			s.Circuits = append(s.Circuits, c)
		}
	}
	s.Rows = append(s.Rows, day.Rows[:]...)
}

// Len returns the number of interval rows.
func (s Series) Len() int {
	return len(s.Rows)
}

// Start returns the first timestamp, or the zero time for an empty series.
func (s Series) Start() time.Time {
	if len(s.Rows) == 0 {
		return time.Time{}
	}
	return s.Rows[0].Timestamp
}

// End returns the last timestamp, or the zero time for an empty series.
func (s Series) End() time.Time {
	if len(s.Rows) == 0 {
		return time.Time{}
	}
	return s.Rows[len(s.Rows)-1].Timestamp
}

// Readings flattens the series into (timestamp, circuit, value) triples, skipping missing values.
func (s Series) Readings() []Reading {
	out := make([]Reading, 0, len(s.Rows)*len(s.Circuits))
	for _, row := range s.Rows {
		for _, c := range s.Circuits {
			v, ok := row.Values[c]
			if !ok || math.IsNaN(v) {
				continue
			}
			out = append(out, Reading{Timestamp: row.Timestamp, Circuit: c, Value: v})
		}
	}
	return out
}

// SeriesOf builds a series from a single day.
func SeriesOf(day DayRecord) Series {
	var s Series
	s.Append(day)
	return s
}

// MarshalJSON writes missing values as null; JSON has no NaN.
func (r Row) MarshalJSON() ([]byte, error) {
	values := make(map[string]*float64, len(r.Values))
	for c, v := range r.Values {
		if math.IsNaN(v) {
			values[c] = nil
			continue
		}
		v := v
		values[c] = &v
	}
	return json.Marshal(struct {
		Timestamp time.Time           `json:"timestamp"`
		Values    map[string]*float64 `json:"values"`
	}{Timestamp: r.Timestamp, Values: values})
}
