package loadprofile

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// IntervalsPerDay is the number of 30-minute intervals in one daily record.
const IntervalsPerDay = 48

// Interval is the width of one reading.
const Interval = 30 * time.Minute

// DateKeyLayout formats the 8-digit date used in file names and record identifiers.
const DateKeyLayout = "20060102"

// DateKey returns the 8-digit identifier of the calendar day d falls on.
func DateKey(d time.Time) string {
	return d.Format(DateKeyLayout)
}

// Reading is a single (timestamp, circuit, value) triple.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Circuit   string    `json:"circuit"`
	Value     float64   `json:"value"`
}

// Row holds every circuit's value for one interval. Missing values are NaN.
type Row struct {
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// DayRecord is one parsed daily record: a fixed 48 rows with one value per circuit.
type DayRecord struct {
	Date     time.Time            `json:"date"`
	Circuits []string             `json:"circuits"`
	Rows     [IntervalsPerDay]Row `json:"rows"`
}

// Key returns the record's 8-digit date identifier.
func (d DayRecord) Key() string {
	return DateKey(d.Date)
}

// DayError reports a day the range assembler had to skip.
type DayError struct {
	Date time.Time `json:"date"`
	Err  error     `json:"-"`
}

func (e DayError) Error() string {
	return fmt.Sprintf("%s: %v", DateKey(e.Date), e.Err)
}

func (e DayError) Unwrap() error {
	return e.Err
}

// MarshalJSON includes the error text, which encoding would otherwise drop.
func (e DayError) MarshalJSON() ([]byte, error) {
	var msg string
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Date  string `json:"date"`
		Error string `json:"error"`
	}{Date: e.Date.Format(time.DateOnly), Error: msg})
}

// Report summarises one GetLoads run.
type Report struct {
	ID        string     `json:"id"`
	Start     time.Time  `json:"start"`
	Stop      time.Time  `json:"stop"`
	Days      int        `json:"days"`
	Succeeded int        `json:"succeeded"`
	Failures  []DayError `json:"failures,omitempty"`
}
