package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/i474232898/load-profile-aggregation/internal/api/http"
	"github.com/i474232898/load-profile-aggregation/internal/archive"
	"github.com/i474232898/load-profile-aggregation/internal/config"
	"github.com/i474232898/load-profile-aggregation/internal/loadprofile"
	"github.com/i474232898/load-profile-aggregation/internal/loadprofile/fetchers"
	"github.com/i474232898/load-profile-aggregation/internal/logging"
	"github.com/i474232898/load-profile-aggregation/internal/scheduler"
	"github.com/i474232898/load-profile-aggregation/internal/store"
)

func main() {
	export := flag.Bool("export", false, "write the load series for -start..-stop to -out and exit")
	start := flag.String("start", "3/1/20", "first day of the export range")
	stop := flag.String("stop", "3/14/20", "last day of the export range (inclusive)")
	out := flag.String("out", "test_result.csv", "CSV file written by -export")
	progress := flag.Bool("progress", false, "log each day as it is processed")
	flag.Parse()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	// Shared HTTP client for outbound fetches.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Fetcher with resilience (backoff + circuit breaker).
	fetcher := fetchers.NewHTTPFetcher(httpClient, fetchers.BackoffConfig{
		MaxRetries:      cfg.FetchRetries,
		InitialInterval: cfg.FetchBackoff,
		MaxInterval:     cfg.FetchBackoffMax,
	})

	diskStore, err := store.NewDiskStore(cfg.CacheDir, fetcher, loadprofile.Source{BaseURL: cfg.BaseURL}, cfg.FetchTimeout)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open cache")
	}

	// Core service assembling cached records into series.
	service := loadprofile.NewService(diskStore, archive.NewExtractor(nil, diskStore),
		loadprofile.WithLabelMode(cfg.Mode()),
		loadprofile.WithWorkers(cfg.Workers),
	)

	if *export {
		if err := runExport(service, *start, *stop, cfg.DateLayout, *out, *progress); err != nil {
			logging.Fatal().Err(err).Msg("export failed")
		}
		return
	}

	// Scheduler that periodically refreshes recent records.
	sched := scheduler.New(service, cfg.RefreshInterval, cfg.RefreshDaysBack)
	if err := sched.Start(); err != nil {
		logging.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "load-profile-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          5 * time.Minute,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "load-profile-aggregation",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, service, cfg.MaxRangeDays)

	go func() {
		logging.Info().Str("port", cfg.Port).Str("cache", cfg.CacheDir).Msg("listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			logging.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("error during shutdown")
	}
}

// runExport writes the series for [start, stop] as CSV, logging days that were skipped.
func runExport(service *loadprofile.Service, start, stop, layout, out string, progress bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	series, report, err := service.GetLoadsFormatted(ctx, start, stop, layout, loadprofile.RangeOptions{
		EnsureOptions: loadprofile.CachedOptions,
		ShowProgress:  progress,
	})
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := loadprofile.WriteCSV(f, series); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	logging.Info().Str("run", report.ID).Str("out", out).Int("days", report.Days).
		Int("succeeded", report.Succeeded).Int("rows", series.Len()).Msg("export written")
	return nil
}
