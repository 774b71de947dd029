package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/config"
	"github.com/aristath/tilt/internal/reliability"
)

// Wire initializes all dependencies and returns a fully configured container.
// This is the main entry point for dependency injection.
// Order of operations:
//  1. Restore databases from cloud backup (fresh install with R2 configured)
//  2. Initialize databases
//  3. Initialize repositories
//  4. Initialize services
//  5. Create background jobs
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	// Step 1: Cloud restore check. Must run before the databases are opened,
	// because opening creates empty files that would mask a fresh install.
	var r2Client *reliability.R2Client
	var restoreService *reliability.RestoreService
	if cfg.BackupEnabled() {
		var err error
		r2Client, err = reliability.NewR2Client(ctx, reliability.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Bucket:          cfg.R2Bucket,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize r2 client: %w", err)
		}

		restoreService = reliability.NewRestoreService(r2Client, cfg.DataDir, log)
		restored, err := restoreService.RestoreIfEmpty(ctx, []string{"history", "views", "results"})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to restore from cloud backup: %w", err)
		}
		if restored {
			log.Info().Msg("Databases restored from cloud backup")
		}
	}

	// Step 2: Initialize databases
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}
	container.R2Client = r2Client
	container.RestoreService = restoreService

	// Step 3: Initialize repositories
	if err := InitializeRepositories(container, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	// Step 4: Initialize services
	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Step 5: Create background jobs
	jobs := RegisterJobs(container, cfg, log)

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, jobs, nil
}
