package marketdata

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/rs/zerolog"
)

const (
	// TradingDaysPerYear annualizes daily covariance.
	TradingDaysPerYear = 252

	// MinObservations is the smallest price history accepted for estimation.
	MinObservations = 30
)

// CovarianceBuilder estimates annualized covariance matrices from stored
// price history. Sample covariance is shrunk towards a constant-correlation
// target (Ledoit-Wolf) for conditioning.
type CovarianceBuilder struct {
	store *Store
	log   zerolog.Logger
}

// NewCovarianceBuilder creates a new covariance builder.
func NewCovarianceBuilder(store *Store, log zerolog.Logger) *CovarianceBuilder {
	return &CovarianceBuilder{
		store: store,
		log:   log.With().Str("component", "covariance").Logger(),
	}
}

// BuildAnnualised estimates the annualized covariance matrix for the given
// assets over [startDate, endDate]. Row and column order follow assetIDs.
func (b *CovarianceBuilder) BuildAnnualised(assetIDs []string, startDate, endDate string) ([][]float64, error) {
	series, err := b.store.CloseSeries(assetIDs, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price history: %w", err)
	}

	if len(series.Dates) < MinObservations {
		return nil, fmt.Errorf("insufficient price history: only %d days available (need at least %d)", len(series.Dates), MinObservations)
	}

	filled := fillMissing(series)
	returns := dailyReturns(filled)

	sample, err := sampleCovariance(returns, assetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate sample covariance: %w", err)
	}

	shrunk, err := ledoitWolfShrinkage(sample)
	if err != nil {
		return nil, fmt.Errorf("failed to apply shrinkage: %w", err)
	}

	for i := range shrunk {
		for j := range shrunk[i] {
			shrunk[i][j] *= TradingDaysPerYear
		}
	}

	b.log.Debug().
		Int("num_assets", len(assetIDs)).
		Int("num_dates", len(series.Dates)).
		Msg("Built annualized covariance matrix")

	return shrunk, nil
}

// fillMissing fills missing observations using forward-fill then back-fill.
func fillMissing(series TimeSeries) TimeSeries {
	filled := TimeSeries{
		Dates: series.Dates,
		Data:  make(map[string][]float64, len(series.Data)),
	}

	for assetID, prices := range series.Data {
		out := make([]float64, len(prices))
		copy(out, prices)

		var lastValid float64
		hasLastValid := false
		for i := 0; i < len(out); i++ {
			if math.IsNaN(out[i]) {
				if hasLastValid {
					out[i] = lastValid
				}
			} else {
				lastValid = out[i]
				hasLastValid = true
			}
		}

		// Leading NaNs take the first valid value.
		var nextValid float64
		hasNextValid := false
		for i := len(out) - 1; i >= 0; i-- {
			if math.IsNaN(out[i]) {
				if hasNextValid {
					out[i] = nextValid
				}
			} else {
				nextValid = out[i]
				hasNextValid = true
			}
		}

		filled.Data[assetID] = out
	}

	return filled
}

// dailyReturns computes simple daily returns per asset. Invalid transitions
// (non-positive or missing previous price) contribute a zero return.
func dailyReturns(series TimeSeries) map[string][]float64 {
	returns := make(map[string][]float64, len(series.Data))

	for assetID, prices := range series.Data {
		if len(prices) < 2 {
			returns[assetID] = []float64{}
			continue
		}

		out := make([]float64, len(prices)-1)
		for i := 1; i < len(prices); i++ {
			if prices[i-1] > 0 && !math.IsNaN(prices[i]) && !math.IsNaN(prices[i-1]) {
				out[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
			}
		}
		returns[assetID] = out
	}

	return returns
}

// sampleCovariance calculates the sample covariance matrix from returns.
// Element (i,j) is the covariance between assetIDs[i] and assetIDs[j].
func sampleCovariance(returns map[string][]float64, assetIDs []string) ([][]float64, error) {
	if len(assetIDs) == 0 {
		return nil, fmt.Errorf("no asset ids provided")
	}

	var length int
	for _, assetID := range assetIDs {
		ret, ok := returns[assetID]
		if !ok {
			return nil, fmt.Errorf("missing returns for asset %s", assetID)
		}
		if length == 0 {
			length = len(ret)
		}
		if len(ret) != length {
			return nil, fmt.Errorf("inconsistent return lengths: expected %d, got %d for asset %s", length, len(ret), assetID)
		}
	}

	if length < 2 {
		return nil, fmt.Errorf("insufficient data: need at least 2 observations, got %d", length)
	}

	n := len(assetIDs)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := stat.Covariance(returns[assetIDs[i]], returns[assetIDs[j]], nil)
			cov[i][j] = c
			if i != j {
				cov[j][i] = c
			}
		}
	}

	return cov, nil
}

// ledoitWolfShrinkage shrinks a sample covariance matrix towards a
// constant-correlation target.
//
// Reference: Ledoit, O., & Wolf, M. (2004). "A well-conditioned estimator
// for large-dimensional covariance matrices"
func ledoitWolfShrinkage(sample [][]float64) ([][]float64, error) {
	n := len(sample)
	if n == 0 {
		return nil, fmt.Errorf("empty covariance matrix")
	}

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += sample[i][i]
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += sample[i][j]
			}
		}
	}
	avgVar /= float64(n)
	if n > 1 {
		avgCov /= float64(n * (n - 1))
	}

	target := make([][]float64, n)
	for i := range target {
		target[i] = make([]float64, n)
		for j := range target[i] {
			if i == j {
				target[i][j] = avgVar
			} else if avgVar > 0 {
				target[i][j] = avgCov
			}
		}
	}

	// Shrinkage intensity: ratio of element variance to distance from the
	// target, clamped to [0, 0.5]. Falls back to 20% when the data carries
	// too little structure to estimate it.
	shrinkage := 0.2
	if n > 2 && avgVar > 0 {
		var sumSqDiff float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				diff := sample[i][j] - target[i][j]
				sumSqDiff += diff * diff
			}
		}
		meanSqDiff := sumSqDiff / float64(n*n)

		var sum, sumSq float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				sum += sample[i][j]
				sumSq += sample[i][j] * sample[i][j]
			}
		}
		mean := sum / float64(n*n)
		variance := sumSq/float64(n*n) - mean*mean

		if variance > 0 && meanSqDiff > 0 {
			shrinkage = math.Min(0.5, math.Max(0.0, variance/(variance+meanSqDiff)))
		}
	}

	shrunk := make([][]float64, n)
	for i := range shrunk {
		shrunk[i] = make([]float64, n)
		for j := range shrunk[i] {
			shrunk[i][j] = (1-shrinkage)*sample[i][j] + shrinkage*target[i][j]
		}
	}

	return shrunk, nil
}
