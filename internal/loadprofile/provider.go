package loadprofile

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrFetch marks network or remote failures.
	ErrFetch = errors.New("fetch failed")
	// ErrArchive marks a malformed archive or one without records for its year.
	ErrArchive = errors.New("archive error")
	// ErrFormat marks a record whose layout or identifier is wrong. Not retryable.
	ErrFormat = errors.New("record format error")
	// ErrIO marks local cache read/write failures.
	ErrIO = errors.New("cache io error")
)

// Fetcher streams the body behind url into sink.
type Fetcher interface {
	Fetch(ctx context.Context, url string, sink io.Writer) error
}

// EnsureOptions controls cache reuse for a single lookup.
type EnsureOptions struct {
	UseCache     bool
	ForceRefresh bool
}

// CachedOptions is the default policy: reuse whatever is on disk.
var CachedOptions = EnsureOptions{UseCache: true}

// Refresh reports whether the cached artifact must be replaced.
func (o EnsureOptions) Refresh(cached bool) bool {
	return !o.UseCache || !cached || o.ForceRefresh
}

// Cache is the contract the disk store satisfies.
type Cache interface {
	EnsureYearArchive(ctx context.Context, year int, opts EnsureOptions) ([]byte, error)
	EnsureDailyRecord(ctx context.Context, date time.Time, opts EnsureOptions) ([]byte, error)
	DiscardYearArchive(year int) error
}

// YearExtractor unpacks a year's archive into the cache.
type YearExtractor interface {
	ExtractYear(year int, archive []byte) (map[string][]byte, error)
}
