package optimization

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SolveWeights applies the Black-Litterman closed-form blending formula and
// returns the posterior weight vector keyed by asset id.
//
// Formulas:
//
//	M         = Ω/τ + P·Σ·Pᵀ                    (k×k precision blend)
//	adjustment = Q/λ − P·Σ·w                    (k excess over equilibrium)
//	posterior  = w + Pᵀ·M⁻¹·adjustment          (n assets)
//
// Where: w = market weights, Σ = market covariance, P = view matrix (one row
// per view), Ω = diagonal view variances, Q = asserted out-performances,
// τ = blend scaling, λ = risk aversion.
//
// The function is pure and reentrant. All inputs must be mutually aligned to
// the assets slice; any misalignment is an ErrDimensionMismatch, never a
// silent reindex. A non-invertible M is an ErrSingularMatrix; no
// pseudo-inverse is substituted. View variances pass into M as given, so
// non-positive values are tolerated deterministically; rejecting them is the
// calibration layer's job.
//
// With zero views the blending term vanishes and the market weights are
// returned unchanged.
func SolveWeights(
	marketWeights map[string]float64,
	covMatrix [][]float64,
	assets []string,
	viewMatrix [][]float64,
	viewVariances []float64,
	outPerformances []float64,
	tau float64,
	riskAversion float64,
) (map[string]float64, error) {
	n := len(assets)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty asset universe", ErrDimensionMismatch)
	}
	if len(covMatrix) != n {
		return nil, fmt.Errorf("%w: covariance matrix has %d rows, universe has %d assets", ErrDimensionMismatch, len(covMatrix), n)
	}
	for i, row := range covMatrix {
		if len(row) != n {
			return nil, fmt.Errorf("%w: covariance matrix row %d has %d columns, expected %d", ErrDimensionMismatch, i, len(row), n)
		}
	}

	k := len(viewMatrix)
	if len(viewVariances) != k {
		return nil, fmt.Errorf("%w: %d view variances for %d views", ErrDimensionMismatch, len(viewVariances), k)
	}
	if len(outPerformances) != k {
		return nil, fmt.Errorf("%w: %d out-performances for %d views", ErrDimensionMismatch, len(outPerformances), k)
	}
	for i, row := range viewMatrix {
		if len(row) != n {
			return nil, fmt.Errorf("%w: view matrix row %d has %d columns, universe has %d assets", ErrDimensionMismatch, i, len(row), n)
		}
	}

	// Build weight vector, erroring on assets with no market weight rather
	// than silently zero-filling.
	w := mat.NewVecDense(n, nil)
	for i, asset := range assets {
		weight, ok := marketWeights[asset]
		if !ok {
			return nil, fmt.Errorf("%w: no market weight for asset %s", ErrDimensionMismatch, asset)
		}
		w.SetVec(i, weight)
	}

	// Zero views: nothing to blend.
	if k == 0 {
		posterior := make(map[string]float64, n)
		for _, asset := range assets {
			posterior[asset] = marketWeights[asset]
		}
		return posterior, nil
	}

	sigma := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sigma.Set(i, j, covMatrix[i][j])
		}
	}

	P := mat.NewDense(k, n, nil)
	for i, row := range viewMatrix {
		for j, coeff := range row {
			P.Set(i, j, coeff)
		}
	}

	// P·Σ is shared by both the precision blend and the adjustment vector.
	var PSigma mat.Dense
	PSigma.Mul(P, sigma)

	// M = Ω/τ + P·Σ·Pᵀ
	var PSigmaPT mat.Dense
	PSigmaPT.Mul(&PSigma, P.T())

	M := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		M.Set(i, i, viewVariances[i]/tau)
	}
	M.Add(M, &PSigmaPT)

	var MInv mat.Dense
	if err := MInv.Inverse(M); err != nil {
		return nil, fmt.Errorf("%w: precision blend is not invertible: %v", ErrSingularMatrix, err)
	}

	// adjustment = Q/λ − P·Σ·w
	var PSigmaW mat.VecDense
	PSigmaW.MulVec(&PSigma, w)

	adjustment := mat.NewVecDense(k, nil)
	for i := 0; i < k; i++ {
		adjustment.SetVec(i, outPerformances[i]/riskAversion-PSigmaW.AtVec(i))
	}

	// posterior = w + Pᵀ·M⁻¹·adjustment
	var MInvAdj mat.VecDense
	MInvAdj.MulVec(&MInv, adjustment)

	var blend mat.VecDense
	blend.MulVec(P.T(), &MInvAdj)

	posterior := make(map[string]float64, n)
	for i, asset := range assets {
		posterior[asset] = w.AtVec(i) + blend.AtVec(i)
	}
	return posterior, nil
}
