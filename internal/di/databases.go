package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/config"
	"github.com/aristath/tilt/internal/database"
)

// InitializeDatabases opens the three databases and applies their schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. history.db - Daily prices and market capitalizations. Bulk profile:
	// imports are large and the data can always be re-imported.
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileBulk,
		Name:    "history",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	container.HistoryDB = historyDB

	// 2. views.db - Investor views. Durable profile: views are user input
	// and cannot be reconstructed.
	viewsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "views.db"),
		Profile: database.ProfileDurable,
		Name:    "views",
	})
	if err != nil {
		historyDB.Close()
		return nil, fmt.Errorf("failed to initialize views database: %w", err)
	}
	container.ViewsDB = viewsDB

	// 3. results.db - Weight snapshots. Durable profile: snapshots are the
	// product and past recommendations must stay inspectable.
	resultsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "results.db"),
		Profile: database.ProfileDurable,
		Name:    "results",
	})
	if err != nil {
		historyDB.Close()
		viewsDB.Close()
		return nil, fmt.Errorf("failed to initialize results database: %w", err)
	}
	container.ResultsDB = resultsDB

	// Apply schemas to all databases.
	for _, db := range []*database.DB{historyDB, viewsDB, resultsDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Msg("All databases initialized and schemas applied")

	return container, nil
}
