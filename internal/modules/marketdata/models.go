// Package marketdata stores price and capitalization history in history.db
// and derives the market inputs the weights engine consumes: market weights,
// annualized covariance, and implied equilibrium returns.
package marketdata

import "time"

// DateFormat is the wire format for dates. Storage uses Unix timestamps at
// midnight UTC.
const DateFormat = "2006-01-02"

// DailyPrice represents a daily OHLCV price point
type DailyPrice struct {
	Date          string  `json:"date"`
	Open          float64 `json:"open,omitempty"`
	High          float64 `json:"high,omitempty"`
	Low           float64 `json:"low,omitempty"`
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close,omitempty"`
	Volume        *int64  `json:"volume,omitempty"`
}

// MarketCap represents a capitalization observation for one asset
type MarketCap struct {
	AssetID   string  `json:"asset_id"`
	Date      string  `json:"date"`
	MarketCap float64 `json:"market_cap"`
}

// TimeSeries holds aligned close prices for a set of assets. Data values for
// dates an asset has no observation on are NaN until filled.
type TimeSeries struct {
	Dates []string
	Data  map[string][]float64
}

// AssetCoverage summarizes stored history for one asset
type AssetCoverage struct {
	AssetID    string `json:"asset_id"`
	FirstDate  string `json:"first_date"`
	LastDate   string `json:"last_date"`
	PriceCount int    `json:"price_count"`
}

func dateToUnix(date string) (int64, error) {
	t, err := time.Parse(DateFormat, date)
	if err != nil {
		return 0, err
	}
	return t.UTC().Unix(), nil
}

func unixToDate(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(DateFormat)
}
