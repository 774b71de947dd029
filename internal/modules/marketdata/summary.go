package marketdata

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/tilt/pkg/formulas"
)

// EMAPeriod is the lookback for the trend distance statistic.
const EMAPeriod = 200

// AssetSummary carries descriptive statistics for one asset over a window.
type AssetSummary struct {
	AssetID              string  `json:"asset_id"`
	LastDate             string  `json:"last_date"`
	LastClose            float64 `json:"last_close"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	AnnualizedReturn     float64 `json:"annualized_return"`
	DistanceFromEMA      float64 `json:"distance_from_ema"`
	Observations         int     `json:"observations"`
}

// Analytics derives per-asset descriptive statistics from stored history.
type Analytics struct {
	store *Store
	log   zerolog.Logger
}

// NewAnalytics creates a new analytics calculator.
func NewAnalytics(store *Store, log zerolog.Logger) *Analytics {
	return &Analytics{
		store: store,
		log:   log.With().Str("component", "marketdata_analytics").Logger(),
	}
}

// AssetSummaries computes summary statistics for each asset over
// [startDate, endDate]. Assets with no stored prices in the window produce
// an error; the engine's inputs should never silently degrade.
func (a *Analytics) AssetSummaries(assetIDs []string, startDate, endDate string) ([]AssetSummary, error) {
	summaries := make([]AssetSummary, 0, len(assetIDs))

	for _, assetID := range assetIDs {
		prices, err := a.store.DailyPrices(assetID, startDate, endDate)
		if err != nil {
			return nil, err
		}
		if len(prices) == 0 {
			return nil, fmt.Errorf("no price history for asset %s in [%s, %s]", assetID, startDate, endDate)
		}

		closes := make([]float64, len(prices))
		for i, p := range prices {
			closes[i] = p.Close
		}

		returns := formulas.CalculateReturns(closes)
		last := prices[len(prices)-1]

		var emaDistance float64
		if d := formulas.CalculateDistanceFromEMA(closes, EMAPeriod); d != nil {
			emaDistance = *d
		}

		summaries = append(summaries, AssetSummary{
			AssetID:              assetID,
			LastDate:             last.Date,
			LastClose:            last.Close,
			AnnualizedVolatility: formulas.AnnualizedVolatility(returns),
			AnnualizedReturn:     formulas.AnnualizedReturn(returns),
			DistanceFromEMA:      emaDistance,
			Observations:         len(prices),
		})
	}

	return summaries, nil
}
