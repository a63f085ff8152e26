package archive

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/i474232898/load-profile-aggregation/internal/loadprofile"
	"github.com/i474232898/load-profile-aggregation/internal/store"
	"github.com/i474232898/load-profile-aggregation/internal/testutil"
)

func newDiskSink(t *testing.T) *store.DiskStore {
	t.Helper()
	s, err := store.NewDiskStore(t.TempDir(), nil, loadprofile.Source{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func yearArchive() []byte {
	return testutil.Zip(map[string][]byte{
		"2019dlp/20190101.dlp": testutil.Record(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), "E1"),
		"2019dlp/20190102.dlp": testutil.Record(time.Date(2019, 1, 2, 0, 0, 0, 0, time.UTC), "E1"),
		"20181231.dlp":         testutil.Record(time.Date(2018, 12, 31, 0, 0, 0, 0, time.UTC), "E1"),
		"notes.txt":            []byte("ignored"),
		"2019dlp/summary.dlp":  []byte("ignored"),
	})
}

func TestExtractYearSelectsRecords(t *testing.T) {
	sink := newDiskSink(t)
	ex := NewExtractor(nil, sink)

	got, err := ex.ExtractYear(2019, yearArchive())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	for _, key := range []string{"20190101", "20190102"} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing %s", key)
		}
		if _, err := os.Stat(filepath.Join(sink.YearDir(2019), key+".dlp")); err != nil {
			t.Errorf("%s not written: %v", key, err)
		}
	}
	if _, err := os.Stat(filepath.Join(sink.YearDir(2019), "20181231.dlp")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("record from another year should be skipped")
	}
}

func TestExtractYearIsIdempotent(t *testing.T) {
	sink := newDiskSink(t)
	ex := NewExtractor(nil, sink)
	path := filepath.Join(sink.YearDir(2019), "20190101.dlp")

	if _, err := ex.ExtractYear(2019, yearArchive()); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ex.ExtractYear(2019, yearArchive()); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("re-extraction changed the cached file")
	}
}

func TestExtractYearErrors(t *testing.T) {
	ex := NewExtractor(nil, newDiskSink(t))

	if _, err := ex.ExtractYear(2019, []byte("garbage")); !errors.Is(err, loadprofile.ErrArchive) {
		t.Errorf("malformed archive: expected ErrArchive, got %v", err)
	}
	if _, err := ex.ExtractYear(2020, yearArchive()); !errors.Is(err, loadprofile.ErrArchive) {
		t.Errorf("no records for year: expected ErrArchive, got %v", err)
	}
}

type stubUnzipper struct{ entries []Entry }

func (s stubUnzipper) Unzip([]byte) ([]Entry, error) { return s.entries, nil }

func TestExtractYearUsesUnzipper(t *testing.T) {
	sink := newDiskSink(t)
	ex := NewExtractor(stubUnzipper{entries: []Entry{
		{Name: `2019dlp\20190301.DLP`, Data: []byte("x")},
	}}, sink)

	got, err := ex.ExtractYear(2019, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(got["20190301"]) != "x" {
		t.Fatalf("unexpected result %v", got)
	}
}

func TestRecordKey(t *testing.T) {
	cases := map[string]string{
		"20190101.dlp":       "20190101",
		"a/b/20190101.dlp":   "20190101",
		"20190101.csv":       "",
		"2019011.dlp":        "",
		"20191301.dlp":       "",
		"profile_report.dlp": "",
	}
	for name, want := range cases {
		got, ok := recordKey(name)
		if got != want || ok != (want != "") {
			t.Errorf("recordKey(%q) = %q, %v; want %q", name, got, ok, want)
		}
	}
}

func TestExtractYearKeepsCachedRecords(t *testing.T) {
	sink := newDiskSink(t)
	refreshed := []byte("refreshed after publication")
	if ok, err := sink.AddDaily(2019, "20190101.dlp", refreshed); err != nil || !ok {
		t.Fatalf("seed: %v %v", ok, err)
	}

	got, err := NewExtractor(nil, sink).ExtractYear(2019, yearArchive())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	onDisk, err := os.ReadFile(filepath.Join(sink.YearDir(2019), "20190101.dlp"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(onDisk, refreshed) {
		t.Fatalf("archive replaced a cached record: %q", onDisk)
	}
	if _, err := os.Stat(filepath.Join(sink.YearDir(2019), "20190102.dlp")); err != nil {
		t.Fatalf("missing record not extracted: %v", err)
	}
}

func TestZipUnzipperEntryLimit(t *testing.T) {
	archive := testutil.Zip(map[string][]byte{
		"20190101.dlp": bytes.Repeat([]byte("9"), 4096),
	})

	if _, err := (ZipUnzipper{MaxEntrySize: 1024}).Unzip(archive); err == nil {
		t.Fatal("expected oversized entry to be rejected")
	}
	entries, err := (ZipUnzipper{}).Unzip(archive)
	if err != nil || len(entries) != 1 {
		t.Fatalf("default limit: %d entries, %v", len(entries), err)
	}

	ex := NewExtractor(ZipUnzipper{MaxEntrySize: 1024}, newDiskSink(t))
	if _, err := ex.ExtractYear(2019, archive); !errors.Is(err, loadprofile.ErrArchive) {
		t.Fatalf("expected ErrArchive, got %v", err)
	}
}
