package loadprofile

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
)

// CSVTimeLayout is the timestamp format of the datetime column.
const CSVTimeLayout = "2006-01-02 15:04:05"

// WriteCSV writes the series as "datetime,<circuits...>", one line per interval.
// Missing values are written as empty cells.
func WriteCSV(w io.Writer, s Series) error {
	wr := csv.NewWriter(w)

	record := make([]string, 0, len(s.Circuits)+1)
	record = append(record, "datetime")
	record = append(record, s.Circuits...)
	if err := wr.Write(record); err != nil {
		return err
	}

	for _, row := range s.Rows {
		record = record[:0]
		record = append(record, row.Timestamp.Format(CSVTimeLayout))
		for _, c := range s.Circuits {
			v, ok := row.Values[c]
			if !ok || math.IsNaN(v) {
				record = append(record, "")
				continue
			}
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := wr.Write(record); err != nil {
			return err
		}
	}

	wr.Flush()
	return wr.Error()
}
