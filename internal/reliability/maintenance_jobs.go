package reliability

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/database"
	"github.com/aristath/tilt/internal/modules/snapshots"
)

// DailyMaintenanceJob keeps the databases healthy: integrity checks, WAL
// checkpoints, a verified local backup and pruning of old data.
type DailyMaintenanceJob struct {
	databases      map[string]*database.DB
	backupService  *BackupService
	snapshotRepo   *snapshots.Repository
	dataDir        string
	keepBackupDays int
	keepSnapshots  int
	log            zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job.
func NewDailyMaintenanceJob(
	databases map[string]*database.DB,
	backupService *BackupService,
	snapshotRepo *snapshots.Repository,
	dataDir string,
	log zerolog.Logger,
) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases:      databases,
		backupService:  backupService,
		snapshotRepo:   snapshotRepo,
		dataDir:        dataDir,
		keepBackupDays: 7,
		keepSnapshots:  365,
		log:            log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// Run executes the daily maintenance job.
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Step 1: Integrity check for all databases.
	for name, db := range j.databases {
		j.log.Debug().Str("database", name).Msg("Running integrity check")

		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("Database integrity check failed")
			return fmt.Errorf("database %s failed integrity check: %w", name, err)
		}
	}

	// Step 2: WAL checkpoint for all databases to prevent WAL bloat.
	for name, db := range j.databases {
		j.log.Debug().Str("database", name).Msg("Running WAL checkpoint")

		if err := db.WALCheckpoint(""); err != nil {
			// Not critical, the next checkpoint will catch up.
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}
	}

	// Step 3: Local backup, verified before it counts.
	backupDir, err := j.backupService.CreateDailyBackup()
	if err != nil {
		return fmt.Errorf("local backup failed: %w", err)
	}
	if err := j.backupService.VerifyBackup(backupDir); err != nil {
		return fmt.Errorf("backup verification failed: %w", err)
	}

	// Step 4: Prune old local backups.
	if removed, err := j.backupService.PruneDailyBackups(j.keepBackupDays); err != nil {
		j.log.Warn().Err(err).Msg("Failed to prune old backups")
	} else if removed > 0 {
		j.log.Info().Int("removed", removed).Msg("Pruned old local backups")
	}

	// Step 5: Prune old weight snapshots.
	if j.snapshotRepo != nil {
		if removed, err := j.snapshotRepo.Prune(j.keepSnapshots); err != nil {
			j.log.Warn().Err(err).Msg("Failed to prune old snapshots")
		} else if removed > 0 {
			j.log.Info().Int64("removed", removed).Msg("Pruned old weight snapshots")
		}
	}

	// Step 6: Disk space check.
	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed successfully")

	return nil
}

// checkDiskSpace verifies sufficient disk space is available.
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	stat := syscall.Statfs_t{}
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(stat.Bavail*uint64(stat.Bsize)) / 1e9

	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	if availableGB < 0.5 {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("Insufficient disk space")
		return fmt.Errorf("only %.2f GB free on data volume", availableGB)
	}

	if availableGB < 5.0 {
		j.log.Warn().
			Float64("available_gb", availableGB).
			Msg("Disk space running low")
	}

	return nil
}

// WeeklyMaintenanceJob reclaims space from the bulk history database.
// The views and results databases use incremental auto-vacuum and stay
// small; the history database takes full imports and benefits from a
// periodic VACUUM.
type WeeklyMaintenanceJob struct {
	historyDB *database.DB
	log       zerolog.Logger
}

// NewWeeklyMaintenanceJob creates a new weekly maintenance job.
func NewWeeklyMaintenanceJob(historyDB *database.DB, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{
		historyDB: historyDB,
		log:       log.With().Str("job", "weekly_maintenance").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *WeeklyMaintenanceJob) Name() string {
	return "weekly_maintenance"
}

// Run executes the weekly maintenance job.
func (j *WeeklyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting weekly maintenance")
	startTime := time.Now()

	statsBefore, err := j.historyDB.GetStats()
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to read stats before VACUUM")
	}

	if err := j.historyDB.Vacuum(); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	statsAfter, err := j.historyDB.GetStats()
	if err == nil && statsBefore != nil {
		sizeBefore := float64(statsBefore.PageCount*statsBefore.PageSize) / 1024 / 1024
		sizeAfter := float64(statsAfter.PageCount*statsAfter.PageSize) / 1024 / 1024

		j.log.Info().
			Float64("size_before_mb", sizeBefore).
			Float64("size_after_mb", sizeAfter).
			Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
			Msg("VACUUM completed")
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Weekly maintenance completed successfully")

	return nil
}
