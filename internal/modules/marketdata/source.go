package marketdata

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/rs/zerolog"
)

// Source derives the market inputs for the weights engine from stored
// history. It is bound to a fixed, ordered asset universe; every vector and
// matrix it returns is aligned to that order.
type Source struct {
	store      *Store
	covariance *CovarianceBuilder
	assetIDs   []string
	log        zerolog.Logger
}

// NewSource creates a market data source over the given ordered universe.
func NewSource(store *Store, assetIDs []string, log zerolog.Logger) *Source {
	return &Source{
		store:      store,
		covariance: NewCovarianceBuilder(store, log),
		assetIDs:   append([]string(nil), assetIDs...),
		log:        log.With().Str("component", "marketdata_source").Logger(),
	}
}

// AssetIDs returns the ordered universe this source serves.
func (s *Source) AssetIDs() []string {
	return append([]string(nil), s.assetIDs...)
}

// MarketWeights returns capitalization-implied weights as of endDate. Every
// asset in the universe must have a capitalization observation at or before
// the cutoff; a gap is an error, never a silent zero weight.
func (s *Source) MarketWeights(endDate string) (map[string]float64, error) {
	caps, err := s.store.MarketCapsAsOf(s.assetIDs, endDate)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, assetID := range s.assetIDs {
		mc, ok := caps[assetID]
		if !ok {
			return nil, fmt.Errorf("no market cap for asset %s at or before %s", assetID, endDate)
		}
		if mc <= 0 {
			return nil, fmt.Errorf("non-positive market cap %.4f for asset %s", mc, assetID)
		}
		total += mc
	}

	weights := make(map[string]float64, len(s.assetIDs))
	for _, assetID := range s.assetIDs {
		weights[assetID] = caps[assetID] / total
	}

	return weights, nil
}

// AnnualisedCovMatrix returns the annualized covariance matrix estimated over
// [startDate, endDate], universe-ordered on both axes.
func (s *Source) AnnualisedCovMatrix(startDate, endDate string) ([][]float64, error) {
	return s.covariance.BuildAnnualised(s.assetIDs, startDate, endDate)
}

// ImpliedReturns returns equilibrium returns pi = riskAversion * Sigma * w,
// keyed by asset id.
func (s *Source) ImpliedReturns(startDate, endDate string, riskAversion float64) (map[string]float64, error) {
	weights, err := s.MarketWeights(endDate)
	if err != nil {
		return nil, err
	}

	covMatrix, err := s.AnnualisedCovMatrix(startDate, endDate)
	if err != nil {
		return nil, err
	}

	n := len(s.assetIDs)
	sigma := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		if len(covMatrix[i]) != n {
			return nil, fmt.Errorf("covariance row %d has %d columns, expected %d", i, len(covMatrix[i]), n)
		}
		for j := 0; j < n; j++ {
			sigma.Set(i, j, covMatrix[i][j])
		}
	}

	w := mat.NewVecDense(n, nil)
	for i, assetID := range s.assetIDs {
		w.SetVec(i, weights[assetID])
	}

	var pi mat.VecDense
	pi.MulVec(sigma, w)
	pi.ScaleVec(riskAversion, &pi)

	returns := make(map[string]float64, n)
	for i, assetID := range s.assetIDs {
		returns[assetID] = pi.AtVec(i)
	}

	return returns, nil
}
