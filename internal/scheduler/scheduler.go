package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/load-profile-aggregation/internal/common"
	"github.com/i474232898/load-profile-aggregation/internal/loadprofile"
	"github.com/i474232898/load-profile-aggregation/internal/logging"
)

// Refresher is the part of loadprofile.Service the scheduler drives.
type Refresher interface {
	GetLoadProfile(ctx context.Context, date time.Time, opts loadprofile.EnsureOptions) (loadprofile.DayRecord, error)
}

// Scheduler periodically re-fetches the most recent daily records, which the utility may
// republish after first posting them.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Refresher
	interval  time.Duration
	daysBack  int
	now       func() time.Time
}

// New creates a new Scheduler refreshing today and the daysBack days before it.
func New(service Refresher, interval time.Duration, daysBack int) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		interval:  interval,
		daysBack:  daysBack,
		now:       time.Now,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		logging.Info().Msg("scheduler: refresh interval is zero; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		logging.Info().Msg("scheduler: running record refresh job")
		refreshed := s.RunOnce(context.Background())
		logging.Info().Int("refreshed", refreshed).Msg("scheduler: completed record refresh job")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce force-refreshes each recent day and returns how many succeeded.
// Failures are logged and do not stop the remaining days.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	today := common.Day(s.now().UTC())
	refreshed := 0
	for back := s.daysBack; back >= 0; back-- {
		day := today.AddDate(0, 0, -back)

		dayCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		_, err := s.service.GetLoadProfile(dayCtx, day, loadprofile.EnsureOptions{UseCache: true, ForceRefresh: true})
		cancel()

		if err != nil {
			logging.Warn().Err(err).Str("date", loadprofile.DateKey(day)).Msg("scheduler: refresh failed")
			continue
		}
		refreshed++
	}
	return refreshed
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
