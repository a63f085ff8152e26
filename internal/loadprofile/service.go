package loadprofile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/load-profile-aggregation/internal/common"
	"github.com/i474232898/load-profile-aggregation/internal/logging"
	"github.com/i474232898/load-profile-aggregation/internal/metrics"
)

// Service assembles load series from cached daily records.
type Service struct {
	cache     Cache
	extractor YearExtractor
	mode      LabelMode
	workers   int
	now       func() time.Time

	mu    sync.Mutex
	years map[int]*yearState
}

// yearState guards the one-time archive fetch and extraction of a past year.
type yearState struct {
	mu   sync.Mutex
	done bool
	err  error
}

// Option configures a Service.
type Option func(*Service)

// WithLabelMode selects the timestamp convention for interval labels.
func WithLabelMode(mode LabelMode) Option {
	return func(s *Service) {
		s.mode = mode
	}
}

// WithWorkers sets how many days GetLoads fetches in parallel. Values below 2 mean sequential.
func WithWorkers(n int) Option {
	return func(s *Service) {
		s.workers = n
	}
}

// WithClock overrides the clock used to tell past years from the current one.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new Service.
func NewService(cache Cache, extractor YearExtractor, opts ...Option) *Service {
	s := &Service{
		cache:     cache,
		extractor: extractor,
		mode:      LabelIntervalStart,
		workers:   1,
		now:       time.Now,
		years:     make(map[int]*yearState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LabelMode returns the configured label convention.
func (s *Service) LabelMode() LabelMode {
	return s.mode
}

// GetLoadProfile returns the parsed record for one day. Errors are returned as-is.
func (s *Service) GetLoadProfile(ctx context.Context, date time.Time, opts EnsureOptions) (DayRecord, error) {
	date = common.Day(date)

	if date.Year() < s.now().UTC().Year() {
		if err := s.ensureYear(ctx, date.Year(), opts); err != nil {
			return DayRecord{}, err
		}
	}

	raw, err := s.cache.EnsureDailyRecord(ctx, date, opts)
	if err != nil {
		return DayRecord{}, err
	}

	rec, err := ParseDailyRecord(date, raw, s.mode)
	metrics.RecordsParsed.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return DayRecord{}, fmt.Errorf("parse %s: %w", DateKey(date), err)
	}
	return rec, nil
}

// GetLoadProfileFormatted is GetLoadProfile for a date given as a string in layout.
func (s *Service) GetLoadProfileFormatted(ctx context.Context, date, layout string, opts EnsureOptions) (DayRecord, error) {
	d, err := common.ParseDate(date, layout)
	if err != nil {
		return DayRecord{}, err
	}
	return s.GetLoadProfile(ctx, d, opts)
}

// ensureYear fetches and extracts a past year's archive once per process.
// A malformed archive is remembered for the rest of the process and dropped from the cache so
// the next process fetches it again; fetch failures are retried on the next call.
func (s *Service) ensureYear(ctx context.Context, year int, opts EnsureOptions) error {
	s.mu.Lock()
	st, ok := s.years[year]
	if !ok {
		st = &yearState{}
		s.years[year] = st
	}
	s.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.done {
		return st.err
	}

	// Past years never change upstream, so a forced refresh does not refetch the archive.
	data, err := s.cache.EnsureYearArchive(ctx, year, EnsureOptions{UseCache: opts.UseCache})
	if err != nil {
		return fmt.Errorf("archive %d: %w", year, err)
	}

	entries, err := s.extractor.ExtractYear(year, data)
	if err != nil {
		if errors.Is(err, ErrArchive) {
			if derr := s.cache.DiscardYearArchive(year); derr != nil {
				logging.Warn().Err(derr).Int("year", year).Msg("could not discard malformed archive")
			}
			st.done, st.err = true, fmt.Errorf("archive %d: %w", year, err)
			return st.err
		}
		return fmt.Errorf("archive %d: %w", year, err)
	}

	logging.Info().Int("year", year).Int("records", len(entries)).Msg("archive extracted")
	st.done = true
	return nil
}

// RangeOptions controls GetLoads.
type RangeOptions struct {
	EnsureOptions
	ShowProgress bool
}

type dayResult struct {
	rec DayRecord
	err error
}

// GetLoads assembles the series for every day in [start, stop], ascending. A day that fails
// is logged, reported in Report.Failures, and left out of the series; the rest continue.
// A stop before start yields an empty series.
func (s *Service) GetLoads(ctx context.Context, start, stop time.Time, opts RangeOptions) (Series, Report) {
	days := common.DayRange(start, stop)
	report := Report{
		ID:    uuid.NewString(),
		Start: common.Day(start),
		Stop:  common.Day(stop),
		Days:  len(days),
	}

	results := make([]dayResult, len(days))
	process := func(i int) {
		if opts.ShowProgress {
			logging.Info().Str("run", report.ID).Str("date", DateKey(days[i])).Msg("processing day")
		}
		if err := ctx.Err(); err != nil {
			results[i].err = err
			return
		}
		results[i].rec, results[i].err = s.GetLoadProfile(ctx, days[i], opts.EnsureOptions)
	}

	if s.workers > 1 && len(days) > 1 {
		s.runParallel(len(days), process)
	} else {
		for i := range days {
			process(i)
		}
	}

	var series Series
	for i, r := range results {
		if r.err != nil {
			metrics.RangeDays.WithLabelValues("failed").Inc()
			logging.Error().Err(r.err).Str("run", report.ID).Str("date", DateKey(days[i])).
				Msg("load profile failed; skipping day")
			report.Failures = append(report.Failures, DayError{Date: days[i], Err: r.err})
			continue
		}
		metrics.RangeDays.WithLabelValues("ok").Inc()
		series.Append(r.rec)
		report.Succeeded++
	}

	return series, report
}

// GetLoadsFormatted is GetLoads for dates given as strings in layout.
func (s *Service) GetLoadsFormatted(ctx context.Context, start, stop, layout string, opts RangeOptions) (Series, Report, error) {
	from, err := common.ParseDate(start, layout)
	if err != nil {
		return Series{}, Report{}, err
	}
	to, err := common.ParseDate(stop, layout)
	if err != nil {
		return Series{}, Report{}, err
	}
	series, report := s.GetLoads(ctx, from, to, opts)
	return series, report, nil
}

// runParallel calls fn for 0..n-1 on the configured number of workers.
func (s *Service) runParallel(n int, fn func(i int)) {
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := min(s.workers, n)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}
