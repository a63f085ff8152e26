package loadprofile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/load-profile-aggregation/internal/common"
)

// Header cells ahead of the time labels: the record identifier, then two metadata columns.
const (
	profileColumn = "Profile"
	methodColumn  = "Method"
	leadColumns   = 3
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseDailyRecord pivots one day's raw record into a DayRecord for date.
//
// The raw layout is wide: a header row "<YYYYMMDD>,Profile,Method,<48 time labels>" followed by
// one row per circuit "<id>,<circuit>,<method>,<48 values>". The result is tall in time: one
// row per interval holding every circuit's value. All failures wrap ErrFormat.
func ParseDailyRecord(date time.Time, raw []byte, mode LabelMode) (DayRecord, error) {
	date = common.Day(date)
	table, err := readTable(raw)
	if err != nil {
		return DayRecord{}, err
	}
	if len(table) == 0 {
		return DayRecord{}, fmt.Errorf("%w: missing header row", ErrFormat)
	}

	header := table[0]
	if len(header) != leadColumns+IntervalsPerDay {
		return DayRecord{}, fmt.Errorf("%w: header has %d columns, want %d",
			ErrFormat, len(header), leadColumns+IntervalsPerDay)
	}
	key := DateKey(date)
	if header[0] != key {
		return DayRecord{}, fmt.Errorf("%w: record identifier %q does not match requested date %s",
			ErrFormat, header[0], key)
	}
	if !strings.EqualFold(header[1], profileColumn) || !strings.EqualFold(header[2], methodColumn) {
		return DayRecord{}, fmt.Errorf("%w: expected %s,%s metadata columns, got %q,%q",
			ErrFormat, profileColumn, methodColumn, header[1], header[2])
	}

	rec := DayRecord{Date: date}
	for i, label := range header[leadColumns:] {
		ts, err := mode.Timestamp(date, label)
		if err != nil {
			return DayRecord{}, err
		}
		rec.Rows[i] = Row{Timestamp: ts, Values: make(map[string]float64, len(table)-1)}
	}

	circuits := table[1:]
	if len(circuits) == 0 {
		return DayRecord{}, fmt.Errorf("%w: record has no circuits", ErrFormat)
	}
	seen := make(map[string]bool, len(circuits))
	for n, row := range circuits {
		if len(row) != len(header) {
			return DayRecord{}, fmt.Errorf("%w: row %d has %d columns, want %d",
				ErrFormat, n+2, len(row), len(header))
		}
		name := row[1]
		if name == "" {
			return DayRecord{}, fmt.Errorf("%w: row %d has no circuit name", ErrFormat, n+2)
		}
		if seen[name] {
			return DayRecord{}, fmt.Errorf("%w: duplicate circuit %q", ErrFormat, name)
		}
		seen[name] = true
		rec.Circuits = append(rec.Circuits, name)

		for i, cell := range row[leadColumns:] {
			v, err := parseValue(cell)
			if err != nil {
				return DayRecord{}, fmt.Errorf("%w: circuit %q at %s: %v", ErrFormat, name, header[leadColumns+i], err)
			}
			rec.Rows[i].Values[name] = v
		}
	}

	if err := orderIntervals(&rec); err != nil {
		return DayRecord{}, err
	}
	return rec, nil
}

// readTable reads raw CSV, trimming cells, dropping empty rows and trailing empty cells.
func readTable(raw []byte) ([][]string, error) {
	rdr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM)))
	rdr.FieldsPerRecord = -1
	rdr.LazyQuotes = true
	rdr.TrimLeadingSpace = true

	var table [][]string
	width := 0
	for {
		fields, err := rdr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		// Data rows keep trailing blanks up to the header width; those are missing values.
		end := len(fields)
		for end > width && fields[end-1] == "" {
			end--
		}
		fields = fields[:end]
		if isEmptyRow(fields) {
			continue
		}
		if width == 0 {
			width = len(fields)
		}
		table = append(table, fields)
	}
	return table, nil
}

func isEmptyRow(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}

func parseValue(cell string) (float64, error) {
	if cell == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

// orderIntervals sorts rows by timestamp and checks they form 48 consecutive half hours.
func orderIntervals(rec *DayRecord) error {
	rows := rec.Rows[:]
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
	for i := 1; i < len(rows); i++ {
		if step := rows[i].Timestamp.Sub(rows[i-1].Timestamp); step != Interval {
			return fmt.Errorf("%w: intervals %s and %s are %s apart, want %s", ErrFormat,
				rows[i-1].Timestamp.Format(time.TimeOnly), rows[i].Timestamp.Format(time.TimeOnly), step, Interval)
		}
	}
	return nil
}
