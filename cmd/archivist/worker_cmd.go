package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flexcoop/archivist/internal/config"
	"github.com/flexcoop/archivist/internal/jobqueue"
	"github.com/flexcoop/archivist/internal/log"
	"github.com/flexcoop/archivist/internal/scheduler"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the long-lived worker pool, sweep, helo-sync, and audit loops",
	Long:  "Runs C5's worker pool against the caption job queue alongside C6's scheduled sweep/helo-sync/audit cadences, until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		bootstrapLogger(cfg)

		app, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runWorker(ctx, app, cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(ctx context.Context, app *App, cfg config.Config) {
	logger := app.Logger

	pool := jobqueue.NewPool(app.Queue, jobqueue.Config{
		Workers:      cfg.Worker.Count,
		MaxRetries:   cfg.Worker.MaxRetries,
		RetryBase:    time.Duration(cfg.Worker.RetryBaseSec) * time.Second,
		RetryCap:     time.Duration(cfg.Worker.RetryCapSec) * time.Second,
		HeartbeatTTL: 5 * time.Minute,
	}, buildProcessFunc(app))
	pool.Start(ctx)

	heloSched := app.heloScheduler()

	sched := app.newScheduler()
	sched.AddTask(scheduler.Task{
		Name:     "sweep",
		Interval: time.Duration(cfg.Scheduler.SweepIntervalSec) * time.Second,
		Jitter:   5 * time.Second,
		Run: func(ctx context.Context) error {
			runSweep(ctx, app)
			return nil
		},
	})
	if len(app.Devices) > 0 {
		sched.AddTask(scheduler.Task{
			Name:     "helo-sync",
			Interval: time.Duration(cfg.Helo.SyncIntervalMinutes) * time.Minute,
			Jitter:   10 * time.Second,
			Run:      heloSched.Tick,
		})
	}
	sched.Start(ctx)

	go runDailyAnchorLoop(ctx, cfg.Scheduler.DailyAnchorLocal, cfg.Scheduler.Timezone, func(ctx context.Context) {
		runSweep(ctx, app)
		report := app.Auditor.Run(ctx)
		logger.Info().Int("cities", len(report.Cities)).Msg("caption audit: daily run complete")
	})

	logger.Info().
		Int("workers", cfg.Worker.Count).
		Int("devices", len(app.Devices)).
		Msg("worker: started")

	<-ctx.Done()
	logger.Info().Msg("worker: shutting down")
	pool.Shutdown(30 * time.Second)
}

// runDailyAnchorLoop invokes run once per day at hhmm local time in tz,
// grounded on scheduler.NextDailyAnchor, until ctx is cancelled.
func runDailyAnchorLoop(ctx context.Context, hhmm, tz string, run func(context.Context)) {
	logger := log.WithComponent("scheduler")

	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Warn().Err(err).Str("timezone", tz).Msg("invalid scheduler timezone; defaulting to UTC")
		loc = time.UTC
	}

	for {
		next, err := scheduler.NextDailyAnchor(time.Now(), hhmm, loc)
		if err != nil {
			logger.Error().Err(err).Str("anchor", hhmm).Msg("invalid daily anchor time; retrying in 24h")
			next = time.Now().Add(24 * time.Hour)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			run(ctx)
		}
	}
}
