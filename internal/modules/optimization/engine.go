package optimization

import (
	"fmt"

	"github.com/aristath/tilt/internal/modules/views"
)

// MarketDataSource supplies the market inputs for a calculation. All vectors
// and matrices returned must be aligned to the settings' asset universe;
// the engine verifies alignment and never reindexes.
type MarketDataSource interface {
	// MarketWeights returns capitalization-implied weights as of endDate.
	MarketWeights(endDate string) (map[string]float64, error)
	// AnnualisedCovMatrix returns the annualized covariance matrix estimated
	// over [startDate, endDate], universe-ordered on both axes.
	AnnualisedCovMatrix(startDate, endDate string) ([][]float64, error)
	// ImpliedReturns returns equilibrium returns over [startDate, endDate]
	// scaled by riskAversion.
	ImpliedReturns(startDate, endDate string, riskAversion float64) (map[string]float64, error)
}

// Result carries the outcome of one full Black-Litterman computation.
type Result struct {
	Weights       map[string]float64 `json:"weights"`
	ViewVariances map[string]float64 `json:"view_variances"`
}

// Engine binds a market-data source and immutable calculation settings, and
// orchestrates the solve: fetch market inputs, build P and Q from the view
// collection, calibrate Omega, blend. It holds no cache and no logger;
// every call re-fetches and re-calibrates, and every failure propagates to
// the caller for reporting.
type Engine struct {
	marketData MarketDataSource
	settings   CalculationSettings
	calibrator *Calibrator
}

// NewEngine creates an engine with default calibration budgets.
func NewEngine(marketData MarketDataSource, settings CalculationSettings) *Engine {
	return NewEngineWithOptions(marketData, settings, DefaultCalibrationOptions())
}

// NewEngineWithOptions creates an engine with explicit calibration budgets.
func NewEngineWithOptions(marketData MarketDataSource, settings CalculationSettings, opts CalibrationOptions) *Engine {
	return &Engine{
		marketData: marketData,
		settings:   settings,
		calibrator: NewCalibrator(opts),
	}
}

// Settings returns the engine's calculation settings.
func (e *Engine) Settings() CalculationSettings {
	return e.settings
}

// AssetUniverse returns the ordered asset ids.
func (e *Engine) AssetUniverse() []string {
	return e.settings.AssetUniverse()
}

// Dates returns the configured calculation window.
func (e *Engine) Dates() (startDate, calculationDate string) {
	return e.settings.StartDate, e.settings.CalculationDate
}

// MarketWeights returns market weights as of endDate, defaulting to the
// settings' calculation date when endDate is empty.
func (e *Engine) MarketWeights(endDate string) (map[string]float64, error) {
	if endDate == "" {
		endDate = e.settings.CalculationDate
	}
	weights, err := e.marketData.MarketWeights(endDate)
	if err != nil {
		return nil, fmt.Errorf("fetching market weights: %w", err)
	}
	return weights, nil
}

// MarketReturns returns implied equilibrium returns over the window, scaled
// by the configured risk aversion. Empty dates default to the settings'
// window.
func (e *Engine) MarketReturns(startDate, endDate string) (map[string]float64, error) {
	start, end := e.window(startDate, endDate)
	returns, err := e.marketData.ImpliedReturns(start, end, e.settings.RiskAversion)
	if err != nil {
		return nil, fmt.Errorf("fetching implied returns: %w", err)
	}
	return returns, nil
}

// BlackLittermanWeights runs the full computation and returns the posterior
// weight vector keyed by asset id.
func (e *Engine) BlackLittermanWeights(collection views.Collection, startDate, endDate string) (map[string]float64, error) {
	result, err := e.Compute(collection, startDate, endDate)
	if err != nil {
		return nil, err
	}
	return result.Weights, nil
}

// ViewVariances calibrates Omega for the collection over the window and
// returns the per-view variances keyed by view id, without running the final
// blend.
func (e *Engine) ViewVariances(collection views.Collection, startDate, endDate string) (map[string]float64, error) {
	inputs, err := e.prepare(collection, startDate, endDate)
	if err != nil {
		return nil, err
	}
	return inputs.variances, nil
}

// Compute runs the full pipeline once: market data fetch, P/Q assembly,
// Omega calibration, final solve.
func (e *Engine) Compute(collection views.Collection, startDate, endDate string) (Result, error) {
	inputs, err := e.prepare(collection, startDate, endDate)
	if err != nil {
		return Result{}, err
	}

	diagonal := make([]float64, collection.Len())
	for i, v := range collection.Views() {
		diagonal[i] = inputs.variances[v.ID]
	}

	weights, err := SolveWeights(
		inputs.marketWeights, inputs.covMatrix, inputs.assets,
		inputs.viewMatrix, diagonal, inputs.outPerformances,
		e.settings.Tau, e.settings.RiskAversion,
	)
	if err != nil {
		return Result{}, err
	}

	return Result{Weights: weights, ViewVariances: inputs.variances}, nil
}

// computationInputs holds everything fetched and calibrated for one call.
type computationInputs struct {
	assets          []string
	marketWeights   map[string]float64
	covMatrix       [][]float64
	viewMatrix      [][]float64
	outPerformances []float64
	variances       map[string]float64
}

func (e *Engine) prepare(collection views.Collection, startDate, endDate string) (computationInputs, error) {
	start, end := e.window(startDate, endDate)
	assets := e.settings.AssetUniverse()

	marketWeights, err := e.marketData.MarketWeights(end)
	if err != nil {
		return computationInputs{}, fmt.Errorf("fetching market weights: %w", err)
	}
	covMatrix, err := e.marketData.AnnualisedCovMatrix(start, end)
	if err != nil {
		return computationInputs{}, fmt.Errorf("fetching covariance matrix: %w", err)
	}

	viewMatrix, err := collection.Matrix(assets)
	if err != nil {
		return computationInputs{}, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
	}

	variances, err := e.calibrator.Calibrate(collection, marketWeights, covMatrix, assets, e.settings)
	if err != nil {
		return computationInputs{}, err
	}

	return computationInputs{
		assets:          assets,
		marketWeights:   marketWeights,
		covMatrix:       covMatrix,
		viewMatrix:      viewMatrix,
		outPerformances: collection.OutPerformances(),
		variances:       variances,
	}, nil
}

func (e *Engine) window(startDate, endDate string) (string, string) {
	if startDate == "" {
		startDate = e.settings.StartDate
	}
	if endDate == "" {
		endDate = e.settings.CalculationDate
	}
	return startDate, endDate
}
