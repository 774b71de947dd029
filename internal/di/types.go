// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/tilt/internal/database"
	"github.com/aristath/tilt/internal/modules/marketdata"
	"github.com/aristath/tilt/internal/modules/optimization"
	"github.com/aristath/tilt/internal/modules/snapshots"
	"github.com/aristath/tilt/internal/modules/views"
	"github.com/aristath/tilt/internal/reliability"
)

// Container holds all application dependencies.
//
// It is the single source of truth for service instances: created once by
// Wire() and handed to the server and scheduler. All dependencies are
// injected via constructors.
type Container struct {
	// Databases
	HistoryDB *database.DB // Price and market-cap history (bulk profile)
	ViewsDB   *database.DB // Investor views (durable profile)
	ResultsDB *database.DB // Weight snapshots (durable profile)

	// Repositories
	MarketStore  *marketdata.Store     // Price history access
	ViewsRepo    *views.Repository     // View persistence
	SnapshotRepo *snapshots.Repository // Snapshot persistence

	// Services
	Settings        optimization.CalculationSettings // Immutable calculation settings
	MarketSource    *marketdata.Source               // Engine-facing market data adapter
	Analytics       *marketdata.Analytics            // Per-asset coverage and summary stats
	Engine          *optimization.Engine             // Black-Litterman engine
	SnapshotService *snapshots.Service               // Compute-and-persist orchestration
	BackupService   *reliability.BackupService       // Local database backups

	// Cloud backup, nil unless R2 credentials are configured
	R2Client        *reliability.R2Client
	R2BackupService *reliability.R2BackupService
	RestoreService  *reliability.RestoreService
}

// Databases returns the databases keyed by logical name, for components that
// operate on all of them (backups, maintenance, health checks).
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"history": c.HistoryDB,
		"views":   c.ViewsDB,
		"results": c.ResultsDB,
	}
}

// Close closes all databases. Safe to call on a partially initialized
// container.
func (c *Container) Close() error {
	var firstErr error
	for _, db := range []*database.DB{c.HistoryDB, c.ViewsDB, c.ResultsDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
