package marketdata

import (
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// Store provides access to price and capitalization history in history.db.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a new history store.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "marketdata_store").Logger(),
	}
}

// SaveDailyPrices inserts or replaces daily prices for an asset in a single
// transaction.
func (s *Store) SaveDailyPrices(assetID string, prices []DailyPrice) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be no-op if Commit succeeds

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO daily_prices
		(asset_id, date, open, high, low, close, adjusted_close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, price := range prices {
		dateUnix, err := dateToUnix(price.Date)
		if err != nil {
			return fmt.Errorf("failed to parse date %s: %w", price.Date, err)
		}

		volume := sql.NullInt64{}
		if price.Volume != nil {
			volume.Int64 = *price.Volume
			volume.Valid = true
		}

		adjustedClose := price.AdjustedClose
		if adjustedClose == 0 {
			adjustedClose = price.Close
		}

		if _, err := stmt.Exec(assetID, dateUnix, price.Open, price.High, price.Low, price.Close, adjustedClose, volume); err != nil {
			return fmt.Errorf("failed to insert daily price for %s: %w", price.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Info().
		Str("asset_id", assetID).
		Int("count", len(prices)).
		Msg("Saved daily prices")

	return nil
}

// DailyPrices fetches stored prices for one asset within [startDate, endDate],
// oldest first.
func (s *Store) DailyPrices(assetID, startDate, endDate string) ([]DailyPrice, error) {
	startUnix, err := dateToUnix(startDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse start date %s: %w", startDate, err)
	}
	endUnix, err := dateToUnix(endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse end date %s: %w", endDate, err)
	}

	query := `
		SELECT date, open, high, low, close, adjusted_close, volume
		FROM daily_prices
		WHERE asset_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := s.db.Query(query, assetID, startUnix, endUnix)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		var dateUnix int64
		var volume sql.NullInt64

		if err := rows.Scan(&dateUnix, &p.Open, &p.High, &p.Low, &p.Close, &p.AdjustedClose, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}

		p.Date = unixToDate(dateUnix)
		if volume.Valid {
			p.Volume = &volume.Int64
		}

		prices = append(prices, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// CloseSeries fetches aligned close prices for a set of assets within
// [startDate, endDate]. The date axis is the union of observation dates;
// missing observations are NaN.
func (s *Store) CloseSeries(assetIDs []string, startDate, endDate string) (TimeSeries, error) {
	if len(assetIDs) == 0 {
		return TimeSeries{}, fmt.Errorf("no asset ids provided")
	}

	startUnix, err := dateToUnix(startDate)
	if err != nil {
		return TimeSeries{}, fmt.Errorf("failed to parse start date %s: %w", startDate, err)
	}
	endUnix, err := dateToUnix(endDate)
	if err != nil {
		return TimeSeries{}, fmt.Errorf("failed to parse end date %s: %w", endDate, err)
	}

	query := `
		SELECT asset_id, date, close
		FROM daily_prices
		WHERE asset_id IN (` + placeholders(len(assetIDs)) + `)
			AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	args := make([]interface{}, 0, len(assetIDs)+2)
	for _, id := range assetIDs {
		args = append(args, id)
	}
	args = append(args, startUnix, endUnix)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return TimeSeries{}, fmt.Errorf("failed to query close prices: %w", err)
	}
	defer rows.Close()

	pricesByAsset := make(map[string]map[int64]float64)
	dateSet := make(map[int64]bool)

	for rows.Next() {
		var assetID string
		var dateUnix int64
		var closePrice float64

		if err := rows.Scan(&assetID, &dateUnix, &closePrice); err != nil {
			return TimeSeries{}, fmt.Errorf("failed to scan close price: %w", err)
		}

		if pricesByAsset[assetID] == nil {
			pricesByAsset[assetID] = make(map[int64]float64)
		}
		pricesByAsset[assetID][dateUnix] = closePrice
		dateSet[dateUnix] = true
	}

	if err := rows.Err(); err != nil {
		return TimeSeries{}, fmt.Errorf("error iterating close prices: %w", err)
	}

	dateUnixes := make([]int64, 0, len(dateSet))
	for d := range dateSet {
		dateUnixes = append(dateUnixes, d)
	}
	sort.Slice(dateUnixes, func(i, j int) bool { return dateUnixes[i] < dateUnixes[j] })

	dates := make([]string, len(dateUnixes))
	for i, d := range dateUnixes {
		dates[i] = unixToDate(d)
	}

	data := make(map[string][]float64, len(assetIDs))
	for _, assetID := range assetIDs {
		series := make([]float64, len(dateUnixes))
		for i, d := range dateUnixes {
			if price, ok := pricesByAsset[assetID][d]; ok {
				series[i] = price
			} else {
				series[i] = math.NaN()
			}
		}
		data[assetID] = series
	}

	return TimeSeries{Dates: dates, Data: data}, nil
}

// SaveMarketCaps inserts or replaces capitalization observations in a single
// transaction.
func (s *Store) SaveMarketCaps(caps []MarketCap) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO market_caps (asset_id, date, market_cap)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, mc := range caps {
		dateUnix, err := dateToUnix(mc.Date)
		if err != nil {
			return fmt.Errorf("failed to parse date %s: %w", mc.Date, err)
		}
		if _, err := stmt.Exec(mc.AssetID, dateUnix, mc.MarketCap); err != nil {
			return fmt.Errorf("failed to insert market cap for %s on %s: %w", mc.AssetID, mc.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Info().Int("count", len(caps)).Msg("Saved market caps")
	return nil
}

// MarketCapsAsOf returns the most recent capitalization at or before endDate
// for each requested asset. Assets with no observation are absent from the
// result.
func (s *Store) MarketCapsAsOf(assetIDs []string, endDate string) (map[string]float64, error) {
	if len(assetIDs) == 0 {
		return map[string]float64{}, nil
	}

	endUnix, err := dateToUnix(endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse end date %s: %w", endDate, err)
	}

	// Latest observation per asset at or before the cutoff.
	query := `
		SELECT asset_id, market_cap
		FROM market_caps
		WHERE asset_id IN (` + placeholders(len(assetIDs)) + `)
			AND date <= ?
			AND date = (
				SELECT MAX(date) FROM market_caps inner_caps
				WHERE inner_caps.asset_id = market_caps.asset_id AND inner_caps.date <= ?
			)
	`

	args := make([]interface{}, 0, len(assetIDs)+2)
	for _, id := range assetIDs {
		args = append(args, id)
	}
	args = append(args, endUnix, endUnix)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query market caps: %w", err)
	}
	defer rows.Close()

	caps := make(map[string]float64)
	for rows.Next() {
		var assetID string
		var marketCap float64
		if err := rows.Scan(&assetID, &marketCap); err != nil {
			return nil, fmt.Errorf("failed to scan market cap: %w", err)
		}
		caps[assetID] = marketCap
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating market caps: %w", err)
	}

	return caps, nil
}

// Coverage summarizes the stored price history per asset.
func (s *Store) Coverage(assetIDs []string) ([]AssetCoverage, error) {
	coverage := make([]AssetCoverage, 0, len(assetIDs))
	for _, assetID := range assetIDs {
		var count int
		var first, last sql.NullInt64

		err := s.db.QueryRow(
			"SELECT COUNT(*), MIN(date), MAX(date) FROM daily_prices WHERE asset_id = ?",
			assetID,
		).Scan(&count, &first, &last)
		if err != nil {
			return nil, fmt.Errorf("failed to query coverage for %s: %w", assetID, err)
		}

		entry := AssetCoverage{AssetID: assetID, PriceCount: count}
		if first.Valid {
			entry.FirstDate = unixToDate(first.Int64)
		}
		if last.Valid {
			entry.LastDate = unixToDate(last.Int64)
		}
		coverage = append(coverage, entry)
	}
	return coverage, nil
}

// placeholders builds SQL placeholders for IN clause.
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}
