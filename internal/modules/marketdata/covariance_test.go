package marketdata

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedPrices stores n consecutive daily closes starting at startDate.
func seedPrices(t *testing.T, store *Store, assetID, startDate string, n int, closeAt func(i int) float64) {
	t.Helper()

	start, err := time.Parse(DateFormat, startDate)
	require.NoError(t, err)

	prices := make([]DailyPrice, n)
	for i := 0; i < n; i++ {
		prices[i] = DailyPrice{
			Date:  start.AddDate(0, 0, i).Format(DateFormat),
			Close: closeAt(i),
		}
	}
	require.NoError(t, store.SaveDailyPrices(assetID, prices))
}

func TestFillMissing(t *testing.T) {
	series := TimeSeries{
		Dates: []string{"d1", "d2", "d3", "d4", "d5"},
		Data: map[string][]float64{
			"A": {math.NaN(), 100, math.NaN(), 102, math.NaN()},
		},
	}

	filled := fillMissing(series)

	assert.Equal(t, []float64{100, 100, 100, 102, 102}, filled.Data["A"])
	assert.True(t, math.IsNaN(series.Data["A"][0]), "input series stays untouched")
}

func TestFillMissing_AllMissingStaysNaN(t *testing.T) {
	series := TimeSeries{
		Dates: []string{"d1", "d2"},
		Data:  map[string][]float64{"A": {math.NaN(), math.NaN()}},
	}

	filled := fillMissing(series)

	assert.True(t, math.IsNaN(filled.Data["A"][0]))
	assert.True(t, math.IsNaN(filled.Data["A"][1]))
}

func TestDailyReturns(t *testing.T) {
	series := TimeSeries{
		Dates: []string{"d1", "d2", "d3"},
		Data:  map[string][]float64{"A": {100, 110, 99}},
	}

	returns := dailyReturns(series)

	require.Len(t, returns["A"], 2)
	assert.InDelta(t, 0.10, returns["A"][0], 1e-12)
	assert.InDelta(t, -0.10, returns["A"][1], 1e-12)
}

func TestDailyReturns_ZeroPreviousPriceYieldsZeroReturn(t *testing.T) {
	series := TimeSeries{
		Dates: []string{"d1", "d2"},
		Data:  map[string][]float64{"A": {0, 100}},
	}

	returns := dailyReturns(series)

	assert.Equal(t, []float64{0}, returns["A"])
}

func TestSampleCovariance(t *testing.T) {
	returns := map[string][]float64{
		"A": {0.01, -0.01, 0.02},
		"B": {0.02, 0.01, -0.01},
	}

	cov, err := sampleCovariance(returns, []string{"A", "B"})

	require.NoError(t, err)
	// Hand-computed with the N-1 denominator: var = 7/30000, cov = -7/60000.
	assert.InDelta(t, 7.0/30000.0, cov[0][0], 1e-12)
	assert.InDelta(t, 7.0/30000.0, cov[1][1], 1e-12)
	assert.InDelta(t, -7.0/60000.0, cov[0][1], 1e-12)
	assert.Equal(t, cov[0][1], cov[1][0])
}

func TestSampleCovariance_Errors(t *testing.T) {
	t.Run("missing asset", func(t *testing.T) {
		_, err := sampleCovariance(map[string][]float64{"A": {0.01, 0.02}}, []string{"A", "B"})
		assert.Error(t, err)
	})

	t.Run("inconsistent lengths", func(t *testing.T) {
		returns := map[string][]float64{"A": {0.01, 0.02}, "B": {0.01}}
		_, err := sampleCovariance(returns, []string{"A", "B"})
		assert.Error(t, err)
	})

	t.Run("too few observations", func(t *testing.T) {
		returns := map[string][]float64{"A": {0.01}}
		_, err := sampleCovariance(returns, []string{"A"})
		assert.Error(t, err)
	})
}

func TestLedoitWolfShrinkage_TwoAssets(t *testing.T) {
	sample := [][]float64{
		{0.04, 0.01},
		{0.01, 0.09},
	}

	shrunk, err := ledoitWolfShrinkage(sample)

	require.NoError(t, err)
	// With two assets the intensity stays at the 0.2 default. The target has
	// avgVar = 0.065 on the diagonal and avgCov = 0.01 off it.
	assert.InDelta(t, 0.045, shrunk[0][0], 1e-12)
	assert.InDelta(t, 0.085, shrunk[1][1], 1e-12)
	assert.InDelta(t, 0.01, shrunk[0][1], 1e-12)
	assert.Equal(t, shrunk[0][1], shrunk[1][0])
}

func TestLedoitWolfShrinkage_SingleAssetUnchanged(t *testing.T) {
	shrunk, err := ledoitWolfShrinkage([][]float64{{0.04}})

	require.NoError(t, err)
	assert.InDelta(t, 0.04, shrunk[0][0], 1e-12)
}

func TestCovarianceBuilder_BuildAnnualised(t *testing.T) {
	store := setupTestStore(t)

	seedPrices(t, store, "VWCE", "2024-01-01", 60, func(i int) float64 {
		return 100 + float64(i) + 2*math.Sin(float64(i)/3)
	})
	seedPrices(t, store, "AGGH", "2024-01-01", 60, func(i int) float64 {
		return 50 + 0.2*float64(i) + math.Cos(float64(i)/5)
	})

	builder := NewCovarianceBuilder(store, zerolog.Nop())
	cov, err := builder.BuildAnnualised([]string{"VWCE", "AGGH"}, "2024-01-01", "2024-03-31")

	require.NoError(t, err)
	require.Len(t, cov, 2)
	require.Len(t, cov[0], 2)
	assert.Greater(t, cov[0][0], 0.0)
	assert.Greater(t, cov[1][1], 0.0)
	assert.Equal(t, cov[0][1], cov[1][0], "covariance matrix must be symmetric")

	again, err := builder.BuildAnnualised([]string{"VWCE", "AGGH"}, "2024-01-01", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, cov, again, "estimation is deterministic")
}

func TestCovarianceBuilder_InsufficientHistory(t *testing.T) {
	store := setupTestStore(t)

	seedPrices(t, store, "VWCE", "2024-01-01", 10, func(i int) float64 { return 100 + float64(i) })

	builder := NewCovarianceBuilder(store, zerolog.Nop())
	_, err := builder.BuildAnnualised([]string{"VWCE"}, "2024-01-01", "2024-03-31")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient price history")
}
