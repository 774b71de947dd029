package optimization

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/tilt/internal/modules/views"
)

// CalibrationOptions bound the per-view variance search.
type CalibrationOptions struct {
	InitialGuess   float64 // starting variance for the search
	MaxIterations  int     // major iteration budget per minimizer run
	MaxEvaluations int     // objective evaluation budget per minimizer run
	Workers        int     // parallel per-view searches
}

// DefaultCalibrationOptions returns the budgets used in production. The
// initial guess of 0.1 sits in the plausible variance range for annualized
// covariances, close enough for the local search across typical confidences.
func DefaultCalibrationOptions() CalibrationOptions {
	return CalibrationOptions{
		InitialGuess:   0.1,
		MaxIterations:  500,
		MaxEvaluations: 5000,
		Workers:        10,
	}
}

// Calibrator translates view confidences into view variances: the diagonal
// entries of Omega. Each view is calibrated in isolation against its own
// single-row view matrix, so views never influence each other's variance.
type Calibrator struct {
	opts CalibrationOptions
}

// NewCalibrator creates a calibrator, filling non-positive options from the
// defaults.
func NewCalibrator(opts CalibrationOptions) *Calibrator {
	defaults := DefaultCalibrationOptions()
	if opts.InitialGuess <= 0 {
		opts.InitialGuess = defaults.InitialGuess
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaults.MaxIterations
	}
	if opts.MaxEvaluations <= 0 {
		opts.MaxEvaluations = defaults.MaxEvaluations
	}
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	return &Calibrator{opts: opts}
}

// Calibrate computes one variance per view and returns them keyed by view
// id. Views are calibrated in parallel across a bounded worker pool; the
// solver underneath is pure, so workers share only read-only inputs. On any
// per-view failure the whole calibration fails, with the first failing view
// in collection order reported.
func (c *Calibrator) Calibrate(
	collection views.Collection,
	marketWeights map[string]float64,
	covMatrix [][]float64,
	assets []string,
	settings CalculationSettings,
) (map[string]float64, error) {
	list := collection.Views()
	if len(list) == 0 {
		return map[string]float64{}, nil
	}

	jobs := make(chan calibrationJob, len(list))
	results := make(chan calibrationResult, len(list))

	numWorkers := c.opts.Workers
	if len(list) < numWorkers {
		numWorkers = len(list)
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				variance, err := c.calibrateView(job.view, marketWeights, covMatrix, assets, settings)
				results <- calibrationResult{index: job.index, variance: variance, err: err}
			}
		}()
	}

	for i, v := range list {
		jobs <- calibrationJob{index: i, view: v}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	variances := make([]float64, len(list))
	errs := make([]error, len(list))
	for result := range results {
		variances[result.index] = result.variance
		errs[result.index] = result.err
	}

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := make(map[string]float64, len(list))
	for i, v := range list {
		out[v.ID] = variances[i]
	}
	return out, nil
}

type calibrationJob struct {
	index int
	view  views.View
}

type calibrationResult struct {
	index    int
	variance float64
	err      error
}

// calibrateView runs the scalar search for a single view:
//
//  1. Solve with only this view's row and a zero variance: the weights if
//     the view were trusted completely.
//  2. Interpolate the target: market + confidence × (full − market).
//  3. Minimize the sum of squared differences between the solver output at a
//     candidate variance and that target.
func (c *Calibrator) calibrateView(
	view views.View,
	marketWeights map[string]float64,
	covMatrix [][]float64,
	assets []string,
	settings CalculationSettings,
) (float64, error) {
	row, err := view.Row(assets)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
	}
	viewMatrix := [][]float64{row}
	outPerformance := []float64{view.OutPerformance}

	fullConfidence, err := SolveWeights(
		marketWeights, covMatrix, assets,
		viewMatrix, []float64{0}, outPerformance,
		settings.Tau, settings.RiskAversion,
	)
	if err != nil {
		return 0, err
	}

	target := make(map[string]float64, len(assets))
	for _, asset := range assets {
		w := marketWeights[asset]
		target[asset] = w + view.Confidence*(fullConfidence[asset]-w)
	}

	// Candidate variances below zero are walled off with +Inf so the search
	// stays in the valid half-line; solver failures during the search are
	// treated the same way.
	objective := func(x []float64) float64 {
		variance := x[0]
		if variance < 0 {
			return math.Inf(1)
		}
		weights, err := SolveWeights(
			marketWeights, covMatrix, assets,
			viewMatrix, []float64{variance}, outPerformance,
			settings.Tau, settings.RiskAversion,
		)
		if err != nil {
			return math.Inf(1)
		}
		var sum float64
		for _, asset := range assets {
			d := weights[asset] - target[asset]
			sum += d * d
		}
		return sum
	}

	variance, err := c.minimize(objective)
	if err != nil {
		return 0, fmt.Errorf("%w: view %q: %v", ErrCalibrationNonConvergence, view.Name, err)
	}
	return variance, nil
}

// Statuses that count as a converged search.
var calibrationSuccessStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.GradientThreshold:   true,
	optimize.FunctionConvergence: true,
	optimize.StepConvergence:     true,
}

// minimize runs the bounded scalar search from the configured initial guess.
// Nelder-Mead handles the +Inf barrier gracefully; BFGS with numerical
// gradients is the fallback when it stalls.
func (c *Calibrator) minimize(objective func([]float64) float64) (float64, error) {
	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{
		MajorIterations: c.opts.MaxIterations,
		FuncEvaluations: c.opts.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 20,
		},
	}
	initial := []float64{c.opts.InitialGuess}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if err != nil || !calibrationSuccessStatuses[result.Status] {
		result, err = optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
		if err != nil {
			return 0, fmt.Errorf("minimization failed: %v", err)
		}
		if !calibrationSuccessStatuses[result.Status] {
			return 0, fmt.Errorf("minimizer stopped with status %v", result.Status)
		}
	}

	variance := result.X[0]
	if math.IsNaN(variance) || math.IsInf(variance, 0) {
		return 0, fmt.Errorf("search produced non-finite variance %v", variance)
	}
	if variance < 0 {
		return 0, fmt.Errorf("search produced negative variance %v", variance)
	}
	return variance, nil
}
