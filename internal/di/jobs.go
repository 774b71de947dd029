package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/config"
	"github.com/aristath/tilt/internal/reliability"
	"github.com/aristath/tilt/internal/scheduler"
)

// JobInstances holds the background jobs for registration with the scheduler.
type JobInstances struct {
	RecalculateWeights *scheduler.RecalculateWeightsJob
	DailyMaintenance   *reliability.DailyMaintenanceJob
	WeeklyMaintenance  *reliability.WeeklyMaintenanceJob
	CloudBackup        *scheduler.CloudBackupJob // nil unless R2 is configured
}

// RegisterJobs creates the background job instances from container services.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) *JobInstances {
	jobs := &JobInstances{
		RecalculateWeights: scheduler.NewRecalculateWeightsJob(container.SnapshotService, log),
		DailyMaintenance: reliability.NewDailyMaintenanceJob(
			container.Databases(),
			container.BackupService,
			container.SnapshotRepo,
			cfg.DataDir,
			log,
		),
		WeeklyMaintenance: reliability.NewWeeklyMaintenanceJob(container.HistoryDB, log),
	}

	if container.R2BackupService != nil {
		jobs.CloudBackup = scheduler.NewCloudBackupJob(container.R2BackupService, log)
	}

	log.Info().Msg("Background jobs created")

	return jobs
}
