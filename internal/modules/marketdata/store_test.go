package marketdata

import (
	"database/sql"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE daily_prices (
			asset_id TEXT NOT NULL,
			date INTEGER NOT NULL,
			open REAL,
			high REAL,
			low REAL,
			close REAL NOT NULL,
			adjusted_close REAL,
			volume INTEGER,
			PRIMARY KEY (asset_id, date)
		);
		CREATE TABLE market_caps (
			asset_id TEXT NOT NULL,
			date INTEGER NOT NULL,
			market_cap REAL NOT NULL,
			PRIMARY KEY (asset_id, date)
		);
	`)
	require.NoError(t, err)

	return NewStore(db, zerolog.Nop())
}

func TestStore_SaveAndFetchDailyPrices(t *testing.T) {
	store := setupTestStore(t)

	volume := int64(1200)
	prices := []DailyPrice{
		{Date: "2024-01-03", Open: 101, High: 103, Low: 100, Close: 102, Volume: &volume},
		{Date: "2024-01-02", Open: 100, High: 102, Low: 99, Close: 101},
	}
	require.NoError(t, store.SaveDailyPrices("VWCE", prices))

	fetched, err := store.DailyPrices("VWCE", "2024-01-01", "2024-01-31")

	require.NoError(t, err)
	require.Len(t, fetched, 2)
	assert.Equal(t, "2024-01-02", fetched[0].Date, "prices come back oldest first")
	assert.Equal(t, "2024-01-03", fetched[1].Date)
	assert.Equal(t, 102.0, fetched[1].Close)
	require.NotNil(t, fetched[1].Volume)
	assert.Equal(t, int64(1200), *fetched[1].Volume)
	assert.Equal(t, 101.0, fetched[0].AdjustedClose, "adjusted close defaults to close")
}

func TestStore_DailyPricesWindowFilter(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.SaveDailyPrices("VWCE", []DailyPrice{
		{Date: "2024-01-01", Close: 100},
		{Date: "2024-02-01", Close: 110},
		{Date: "2024-03-01", Close: 120},
	}))

	fetched, err := store.DailyPrices("VWCE", "2024-01-15", "2024-02-15")

	require.NoError(t, err)
	require.Len(t, fetched, 1)
	assert.Equal(t, "2024-02-01", fetched[0].Date)
}

func TestStore_SaveDailyPricesRejectsBadDate(t *testing.T) {
	store := setupTestStore(t)

	err := store.SaveDailyPrices("VWCE", []DailyPrice{{Date: "03/01/2024", Close: 100}})

	assert.Error(t, err)
}

func TestStore_CloseSeriesAlignment(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.SaveDailyPrices("VWCE", []DailyPrice{
		{Date: "2024-01-01", Close: 100},
		{Date: "2024-01-02", Close: 101},
		{Date: "2024-01-03", Close: 102},
	}))
	// AGGH misses the middle date.
	require.NoError(t, store.SaveDailyPrices("AGGH", []DailyPrice{
		{Date: "2024-01-01", Close: 50},
		{Date: "2024-01-03", Close: 51},
	}))

	series, err := store.CloseSeries([]string{"VWCE", "AGGH"}, "2024-01-01", "2024-01-03")

	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, series.Dates)
	assert.Equal(t, []float64{100, 101, 102}, series.Data["VWCE"])

	aggh := series.Data["AGGH"]
	require.Len(t, aggh, 3)
	assert.Equal(t, 50.0, aggh[0])
	assert.True(t, math.IsNaN(aggh[1]), "missing observation must be NaN, not zero")
	assert.Equal(t, 51.0, aggh[2])
}

func TestStore_MarketCapsAsOf(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.SaveMarketCaps([]MarketCap{
		{AssetID: "VWCE", Date: "2024-01-01", MarketCap: 500},
		{AssetID: "VWCE", Date: "2024-02-01", MarketCap: 600},
		{AssetID: "VWCE", Date: "2024-03-01", MarketCap: 700},
		{AssetID: "AGGH", Date: "2024-01-15", MarketCap: 400},
	}))

	caps, err := store.MarketCapsAsOf([]string{"VWCE", "AGGH", "SGLD"}, "2024-02-15")

	require.NoError(t, err)
	assert.Equal(t, 600.0, caps["VWCE"], "latest observation at or before cutoff wins")
	assert.Equal(t, 400.0, caps["AGGH"])
	_, present := caps["SGLD"]
	assert.False(t, present, "asset with no observations is absent, not zero")
}

func TestStore_MarketCapsAsOfExactDate(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.SaveMarketCaps([]MarketCap{
		{AssetID: "VWCE", Date: "2024-02-01", MarketCap: 600},
	}))

	caps, err := store.MarketCapsAsOf([]string{"VWCE"}, "2024-02-01")

	require.NoError(t, err)
	assert.Equal(t, 600.0, caps["VWCE"])
}

func TestStore_Coverage(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.SaveDailyPrices("VWCE", []DailyPrice{
		{Date: "2024-01-01", Close: 100},
		{Date: "2024-03-01", Close: 120},
	}))

	coverage, err := store.Coverage([]string{"VWCE", "SGLD"})

	require.NoError(t, err)
	require.Len(t, coverage, 2)
	assert.Equal(t, AssetCoverage{AssetID: "VWCE", FirstDate: "2024-01-01", LastDate: "2024-03-01", PriceCount: 2}, coverage[0])
	assert.Equal(t, AssetCoverage{AssetID: "SGLD", PriceCount: 0}, coverage[1])
}
