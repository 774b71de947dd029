package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/config"
	"github.com/aristath/tilt/internal/modules/marketdata"
	"github.com/aristath/tilt/internal/modules/optimization"
	"github.com/aristath/tilt/internal/modules/snapshots"
	"github.com/aristath/tilt/internal/reliability"
)

// InitializeServices creates the business logic layer: calculation settings,
// the market data adapter, the engine and the snapshot orchestration.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return fmt.Errorf("failed to load calculation settings: %w", err)
	}
	container.Settings = settings

	container.MarketSource = marketdata.NewSource(container.MarketStore, settings.AssetUniverse(), log)
	container.Analytics = marketdata.NewAnalytics(container.MarketStore, log)
	container.Engine = optimization.NewEngine(container.MarketSource, settings)
	container.SnapshotService = snapshots.NewService(container.Engine, container.ViewsRepo, container.SnapshotRepo, log)
	container.BackupService = reliability.NewBackupService(container.Databases(), cfg.DataDir, log)

	// Cloud backup rides on the local backup service and is only wired when
	// all R2 credentials are present.
	if container.R2Client != nil {
		container.R2BackupService = reliability.NewR2BackupService(
			container.R2Client,
			container.BackupService,
			cfg.DataDir,
			log,
		)
	}

	log.Info().
		Int("assets", settings.AssetCount()).
		Str("start_date", settings.StartDate).
		Str("calculation_date", settings.CalculationDate).
		Msg("Services initialized")

	return nil
}
