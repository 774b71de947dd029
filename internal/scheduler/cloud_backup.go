package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/reliability"
)

// CloudBackupJob uploads a full backup archive to R2 and rotates old ones.
// Only registered when R2 credentials are configured.
type CloudBackupJob struct {
	backupService *reliability.R2BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewCloudBackupJob creates a new cloud backup job.
func NewCloudBackupJob(backupService *reliability.R2BackupService, log zerolog.Logger) *CloudBackupJob {
	return &CloudBackupJob{
		backupService: backupService,
		retentionDays: 30,
		log:           log.With().Str("job", "cloud_backup").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *CloudBackupJob) Name() string {
	return "cloud_backup"
}

// Run executes the cloud backup.
func (j *CloudBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if err := j.backupService.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.backupService.RotateOldBackups(ctx, j.retentionDays); err != nil {
		// The upload succeeded; rotation can catch up tomorrow.
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}
