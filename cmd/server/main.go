// Package main is the entry point for tilt, a Black-Litterman target-weights
// service. It keeps daily prices and market capitalizations in SQLite, lets
// the user maintain a set of investor views over HTTP, and turns both into
// posterior portfolio weights, either on demand or on a nightly schedule.
//
// Startup order matters: configuration first, then dependency wiring (which
// may restore databases from a cloud backup before opening them), then the
// cron scheduler, then the HTTP server. Shutdown reverses it.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/tilt/internal/config"
	"github.com/aristath/tilt/internal/di"
	"github.com/aristath/tilt/internal/scheduler"
	"github.com/aristath/tilt/internal/server"
	"github.com/aristath/tilt/pkg/logger"
)

// Cron schedules for the background jobs, six-field with a seconds column.
// The nightly recalculation runs before the maintenance job so the fresh
// snapshot is part of that night's backup.
const (
	recalculateSchedule       = "0 0 1 * * *" // 01:00 every night
	dailyMaintenanceSchedule  = "0 0 2 * * *" // 02:00 every night
	cloudBackupSchedule       = "0 0 3 * * *" // 03:00 every night
	weeklyMaintenanceSchedule = "0 0 4 * * 0" // 04:00 on Sundays
)

func main() {
	// Load configuration first to get the log level. Configuration comes
	// from environment variables, with .env honoured for development.
	cfg, err := config.Load()
	if err != nil {
		// Use a fallback logger so the configuration error is still logged.
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting tilt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire all dependencies using the DI container: databases, repositories,
	// services and jobs, all injected via constructors. When R2 credentials
	// are configured and the data directory holds no databases yet, Wire
	// restores the most recent cloud backup before any database is opened.
	container, jobs, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// All databases must close on exit so final WAL checkpoints are written.
	defer container.Close()

	// Schedule background jobs. The cloud backup job only exists when R2
	// credentials are configured.
	sched := scheduler.New(log)
	if err := sched.AddJob(recalculateSchedule, jobs.RecalculateWeights); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule weight recalculation")
	}
	if err := sched.AddJob(dailyMaintenanceSchedule, jobs.DailyMaintenance); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule daily maintenance")
	}
	if err := sched.AddJob(weeklyMaintenanceSchedule, jobs.WeeklyMaintenance); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule weekly maintenance")
	}
	if jobs.CloudBackup != nil {
		if err := sched.AddJob(cloudBackupSchedule, jobs.CloudBackup); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule cloud backup")
		}
	}
	sched.Start()

	// Initialize the HTTP server. It serves the engine facade, view CRUD,
	// price import, snapshots and system operations, all backed by the
	// container services.
	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		DevMode:   cfg.DevMode,
		Container: container,
	})

	// Start the server in a goroutine so the main thread can wait for
	// shutdown signals.
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Stop the scheduler first so no job starts mid-shutdown; Stop waits for
	// running jobs to finish.
	sched.Stop()

	// The HTTP server gets up to 10 seconds to finish in-flight requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
