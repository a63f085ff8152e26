package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/i474232898/load-profile-aggregation/internal/loadprofile"
	"github.com/i474232898/load-profile-aggregation/internal/logging"
	"github.com/i474232898/load-profile-aggregation/internal/metrics"
)

// ErrNotCached is returned by Read when an artifact has never been stored.
var ErrNotCached = errors.New("not cached")

const lockStripes = 64

// DiskStore is the on-disk cache of yearly archives and daily records:
//
//	<root>/<YYYY>dlp.zip
//	<root>/<YYYY>dlp/<YYYYMMDD>.dlp
//
// Every write lands in a temp file that is renamed into place, so a reader never sees a
// partial or empty artifact under its final name.
type DiskStore struct {
	root         string
	fetcher      loadprofile.Fetcher
	source       loadprofile.Source
	fetchTimeout time.Duration

	// striped by path; a fetch of one artifact never races another fetch of the same one
	locks [lockStripes]sync.Mutex
}

// NewDiskStore creates the cache root if needed. fetchTimeout bounds each remote fetch
// (0 = only the caller's context).
func NewDiskStore(root string, fetcher loadprofile.Fetcher, source loadprofile.Source, fetchTimeout time.Duration) (*DiskStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: cache root is empty", loadprofile.ErrIO)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create cache root: %v", loadprofile.ErrIO, err)
	}
	return &DiskStore{
		root:         root,
		fetcher:      fetcher,
		source:       source,
		fetchTimeout: fetchTimeout,
	}, nil
}

// Root returns the cache root directory.
func (s *DiskStore) Root() string {
	return s.root
}

// ArchivePath returns where a year's archive is cached.
func (s *DiskStore) ArchivePath(year int) string {
	return filepath.Join(s.root, strconv.Itoa(year)+"dlp.zip")
}

// YearDir returns the directory holding a year's daily records.
func (s *DiskStore) YearDir(year int) string {
	return filepath.Join(s.root, strconv.Itoa(year)+"dlp")
}

// DailyPath returns where the record for date's day is cached.
func (s *DiskStore) DailyPath(date time.Time) string {
	return filepath.Join(s.YearDir(date.Year()), loadprofile.DateKey(date)+loadprofile.RecordExt)
}

// EnsureYearArchive returns the year's archive bytes, fetching them when opts call for it.
func (s *DiskStore) EnsureYearArchive(ctx context.Context, year int, opts loadprofile.EnsureOptions) ([]byte, error) {
	return s.ensure(ctx, metrics.KindArchive, s.ArchivePath(year), s.source.ArchiveURL(year), opts)
}

// EnsureDailyRecord returns the raw record for date's day, fetching it when opts call for it.
func (s *DiskStore) EnsureDailyRecord(ctx context.Context, date time.Time, opts loadprofile.EnsureOptions) ([]byte, error) {
	if err := s.mkdir(s.YearDir(date.Year())); err != nil {
		return nil, err
	}
	return s.ensure(ctx, metrics.KindDaily, s.DailyPath(date), s.source.DailyURL(date), opts)
}

// Read returns a cached daily record without touching the network.
func (s *DiskStore) Read(date time.Time) ([]byte, error) {
	data, cached, err := readCached(s.DailyPath(date))
	if err != nil {
		return nil, err
	}
	if !cached {
		return nil, fmt.Errorf("%s: %w", loadprofile.DateKey(date), ErrNotCached)
	}
	return data, nil
}

// AddDaily stores an extracted record file under the year's directory unless a record is
// already cached there, and reports whether it wrote. A cached record may be a later refresh
// of the archived one.
func (s *DiskStore) AddDaily(year int, name string, data []byte) (bool, error) {
	dir := s.YearDir(year)
	if err := s.mkdir(dir); err != nil {
		return false, err
	}
	path := filepath.Join(dir, filepath.Base(name))

	m := s.lock(path)
	m.Lock()
	defer m.Unlock()

	if _, cached, err := readCached(path); err != nil || cached {
		return false, err
	}
	err := writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	return err == nil, err
}

// DiscardYearArchive removes the cached archive for year, if any.
func (s *DiskStore) DiscardYearArchive(year int) error {
	path := s.ArchivePath(year)

	m := s.lock(path)
	m.Lock()
	defer m.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", loadprofile.ErrIO, path, err)
	}
	return nil
}

func (s *DiskStore) ensure(ctx context.Context, kind, path, url string, opts loadprofile.EnsureOptions) ([]byte, error) {
	m := s.lock(path)
	m.Lock()
	defer m.Unlock()

	data, cached, err := readCached(path)
	if err != nil {
		return nil, err
	}
	if !opts.Refresh(cached) {
		metrics.CacheLookups.WithLabelValues(kind, "hit").Inc()
		return data, nil
	}
	if cached {
		metrics.CacheLookups.WithLabelValues(kind, "refresh").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues(kind, "miss").Inc()
	}

	fresh, err := s.fetch(ctx, kind, path, url)
	if err != nil {
		if cached && opts.UseCache && !errors.Is(err, loadprofile.ErrIO) {
			logging.Warn().Err(err).Str("path", path).Msg("refresh failed; serving cached copy")
			return data, nil
		}
		return nil, err
	}
	return fresh, nil
}

func (s *DiskStore) fetch(ctx context.Context, kind, path, url string) ([]byte, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured for %s", loadprofile.ErrFetch, url)
	}
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	logging.Debug().Str("kind", kind).Str("url", url).Msg("fetching")
	started := time.Now()

	var buf bytes.Buffer
	err := writeAtomic(path, func(w io.Writer) error {
		if err := s.fetcher.Fetch(ctx, url, io.MultiWriter(w, &buf)); err != nil {
			if errors.Is(err, loadprofile.ErrIO) || errors.Is(err, loadprofile.ErrFetch) {
				return err
			}
			return fmt.Errorf("%w: %s: %v", loadprofile.ErrFetch, url, err)
		}
		if buf.Len() == 0 {
			return fmt.Errorf("%w: %s: empty response", loadprofile.ErrFetch, url)
		}
		return nil
	})
	metrics.RecordFetch(kind, started, err)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *DiskStore) lock(path string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *DiskStore) mkdir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", loadprofile.ErrIO, dir, err)
	}
	return nil
}

// readCached reports whether a non-empty artifact exists at path and returns it.
func readCached(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: read %s: %v", loadprofile.ErrIO, path, err)
	}
	return data, len(data) > 0, nil
}

// writeAtomic fills a temp file next to path and renames it into place. The temp file is
// removed on any failure.
func writeAtomic(path string, fill func(w io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", loadprofile.ErrIO, path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = fill(ioErrWriter{tmp}); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", loadprofile.ErrIO, tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", loadprofile.ErrIO, tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: rename into %s: %v", loadprofile.ErrIO, path, err)
	}
	return nil
}

// ioErrWriter tags write failures with ErrIO so they are not mistaken for fetch errors.
type ioErrWriter struct {
	w io.Writer
}

func (w ioErrWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", loadprofile.ErrIO, err)
	}
	return n, nil
}
