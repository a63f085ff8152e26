// Package archive unpacks a year's DLP archive into the daily record cache.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/i474232898/load-profile-aggregation/internal/loadprofile"
	"github.com/i474232898/load-profile-aggregation/internal/logging"
	"github.com/i474232898/load-profile-aggregation/internal/metrics"
)

// Entry is one file inside an archive.
type Entry struct {
	Name string
	Data []byte
}

// Unzipper lists the entries of an archive.
type Unzipper interface {
	Unzip(data []byte) ([]Entry, error)
}

// Sink receives extracted daily records. AddDaily reports false when it kept a record it
// already had.
type Sink interface {
	AddDaily(year int, name string, data []byte) (bool, error)
}

// Extractor selects a year's daily records from its archive and writes them to a Sink.
type Extractor struct {
	unzipper Unzipper
	sink     Sink
}

// NewExtractor creates an Extractor. A nil unzipper means ZipUnzipper.
func NewExtractor(unzipper Unzipper, sink Sink) *Extractor {
	if unzipper == nil {
		unzipper = ZipUnzipper{}
	}
	return &Extractor{unzipper: unzipper, sink: sink}
}

// ExtractYear hands every "<YYYYMMDD>.dlp" entry dated within year to the sink and returns
// them keyed by date. Records the sink already holds are left alone.
func (e *Extractor) ExtractYear(year int, data []byte) (map[string][]byte, error) {
	entries, err := e.unzipper.Unzip(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", loadprofile.ErrArchive, err)
	}

	out := make(map[string][]byte)
	added := 0
	for _, ent := range entries {
		key, ok := recordKey(ent.Name)
		if !ok {
			continue
		}
		if !inYear(key, year) {
			logging.Debug().Str("entry", ent.Name).Int("year", year).Msg("skipping record from another year")
			continue
		}
		written, err := e.sink.AddDaily(year, key+loadprofile.RecordExt, ent.Data)
		if err != nil {
			return nil, err
		}
		if written {
			added++
		}
		out[key] = ent.Data
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no %s records for %d", loadprofile.ErrArchive, loadprofile.RecordExt, year)
	}
	metrics.ArchiveEntriesExtracted.Add(float64(added))
	if kept := len(out) - added; kept > 0 {
		logging.Debug().Int("year", year).Int("kept", kept).Msg("archive records already cached")
	}
	return out, nil
}

// recordKey returns the 8-digit date of a record entry name. Directories inside the archive
// are ignored.
func recordKey(name string) (string, bool) {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if !strings.EqualFold(path.Ext(base), loadprofile.RecordExt) {
		return "", false
	}
	key := strings.TrimSuffix(base, path.Ext(base))
	if len(key) != len(loadprofile.DateKeyLayout) {
		return "", false
	}
	if _, err := time.Parse(loadprofile.DateKeyLayout, key); err != nil {
		return "", false
	}
	return key, true
}

func inYear(key string, year int) bool {
	return key[:4] == strconv.Itoa(year)
}

// DefaultMaxEntrySize caps one uncompressed archive entry. A daily record is a few tens of KB.
const DefaultMaxEntrySize = 16 << 20

// ZipUnzipper reads zip archives.
type ZipUnzipper struct {
	// MaxEntrySize bounds each uncompressed entry; zero means DefaultMaxEntrySize.
	MaxEntrySize int64
}

// Unzip returns every regular file in the zip. An entry larger than the cap is an error.
func (u ZipUnzipper) Unzip(data []byte) ([]Entry, error) {
	limit := u.MaxEntrySize
	if limit <= 0 {
		limit = DefaultMaxEntrySize
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.UncompressedSize64 > uint64(limit) {
			return nil, fmt.Errorf("%s: %d bytes exceeds the %d byte entry limit", f.Name, f.UncompressedSize64, limit)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		// The header size can lie; the reader is capped as well.
		body, err := io.ReadAll(io.LimitReader(rc, limit+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		if int64(len(body)) > limit {
			return nil, fmt.Errorf("%s: exceeds the %d byte entry limit", f.Name, limit)
		}
		entries = append(entries, Entry{Name: f.Name, Data: body})
	}
	return entries, nil
}
