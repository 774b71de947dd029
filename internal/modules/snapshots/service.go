package snapshots

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/modules/optimization"
	"github.com/aristath/tilt/internal/modules/views"
)

// Service runs the weights engine against the stored views and persists the
// outcome. The engine itself stays cache-free; history lives here.
type Service struct {
	engine    *optimization.Engine
	viewsRepo *views.Repository
	repo      *Repository
	log       zerolog.Logger
}

// NewService creates a new snapshot service.
func NewService(engine *optimization.Engine, viewsRepo *views.Repository, repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		engine:    engine,
		viewsRepo: viewsRepo,
		repo:      repo,
		log:       log.With().Str("service", "snapshots").Logger(),
	}
}

// Run computes target weights from the stored views over the configured
// window and persists the result as a new snapshot.
func (s *Service) Run() (Snapshot, error) {
	collection, err := s.viewsRepo.Collection()
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading views: %w", err)
	}

	result, err := s.engine.Compute(collection, "", "")
	if err != nil {
		return Snapshot{}, fmt.Errorf("computing weights: %w", err)
	}

	startDate, endDate := s.engine.Dates()
	snapshot := Snapshot{
		CreatedAt:     time.Now().Unix(),
		StartDate:     startDate,
		EndDate:       endDate,
		ViewCount:     collection.Len(),
		Weights:       result.Weights,
		ViewVariances: result.ViewVariances,
	}

	id, err := s.repo.Save(snapshot)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.ID = id

	s.log.Info().
		Int64("snapshot_id", id).
		Int("view_count", snapshot.ViewCount).
		Str("start", startDate).
		Str("end", endDate).
		Msg("Computed and stored weight snapshot")

	return snapshot, nil
}
