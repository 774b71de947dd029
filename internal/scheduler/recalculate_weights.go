package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/modules/snapshots"
)

// RecalculateWeightsJob recomputes the target weights from all stored views
// and persists the result as a new snapshot. Runs nightly so the latest
// snapshot always reflects the newest price history.
type RecalculateWeightsJob struct {
	service *snapshots.Service
	log     zerolog.Logger
}

// NewRecalculateWeightsJob creates a new weight recalculation job.
func NewRecalculateWeightsJob(service *snapshots.Service, log zerolog.Logger) *RecalculateWeightsJob {
	return &RecalculateWeightsJob{
		service: service,
		log:     log.With().Str("job", "recalculate_weights").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *RecalculateWeightsJob) Name() string {
	return "recalculate_weights"
}

// Run executes the recalculation.
func (j *RecalculateWeightsJob) Run() error {
	j.log.Info().Msg("Starting weight recalculation")
	startTime := time.Now()

	snapshot, err := j.service.Run()
	if err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Int64("snapshot_id", snapshot.ID).
		Int("view_count", snapshot.ViewCount).
		Msg("Weight recalculation completed")

	return nil
}
