package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/modules/marketdata"
	"github.com/aristath/tilt/internal/modules/snapshots"
	"github.com/aristath/tilt/internal/modules/views"
)

// InitializeRepositories creates the data access layer on top of the
// databases.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	container.MarketStore = marketdata.NewStore(container.HistoryDB.Conn(), log)
	container.ViewsRepo = views.NewRepository(container.ViewsDB.Conn(), log)
	container.SnapshotRepo = snapshots.NewRepository(container.ResultsDB.Conn(), log)

	log.Info().Msg("Repositories initialized")

	return nil
}
