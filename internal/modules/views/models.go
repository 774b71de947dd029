// Package views holds investor views: assertions that a linear combination
// of assets will earn a stated excess return, with a confidence in [0,1].
// A collection of views produces the P matrix and Q vector consumed by the
// Black-Litterman engine.
package views

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

var (
	// ErrInvalidView indicates a view that fails validation (confidence out
	// of range, empty allocation, non-finite numbers).
	ErrInvalidView = errors.New("invalid view")

	// ErrUnknownAsset indicates a view allocation referencing an asset that
	// is not part of the requested universe.
	ErrUnknownAsset = errors.New("view references an asset outside the universe")

	// ErrDuplicateID indicates two views sharing an id within one collection.
	ErrDuplicateID = errors.New("duplicate view id")

	// ErrNotFound indicates a view id with no stored row.
	ErrNotFound = errors.New("view not found")
)

// Allocation maps asset ids to the coefficients of the view's linear
// combination. An absolute view references a single asset with coefficient
// +1; a relative view sets +1 on the expected outperformer and -1 on the
// expected underperformer. Arbitrary combinations are allowed.
type Allocation map[string]float64

// NewAbsoluteAllocation builds the allocation for "asset earns Q".
func NewAbsoluteAllocation(assetID string) Allocation {
	return Allocation{assetID: 1.0}
}

// NewRelativeAllocation builds the allocation for "outperformer beats
// underperformer by Q".
func NewRelativeAllocation(outperformer, underperformer string) Allocation {
	return Allocation{outperformer: 1.0, underperformer: -1.0}
}

// View is a single investor assertion. Immutable once created; edits go
// through the repository, which replaces the stored row.
type View struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Confidence     float64    `json:"confidence"`
	OutPerformance float64    `json:"out_performance"`
	Allocation     Allocation `json:"allocation"`
}

// NewView validates the fields and assigns a fresh id.
func NewView(name string, confidence, outPerformance float64, allocation Allocation) (View, error) {
	v := View{
		ID:             uuid.NewString(),
		Name:           name,
		Confidence:     confidence,
		OutPerformance: outPerformance,
		Allocation:     allocation,
	}
	if err := v.Validate(); err != nil {
		return View{}, err
	}
	return v, nil
}

// Validate checks the view's own consistency. Universe membership is not
// checked here; that happens when a row is built against a universe.
func (v View) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidView)
	}
	if math.IsNaN(v.Confidence) || v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0, 1]", ErrInvalidView, v.Confidence)
	}
	if math.IsNaN(v.OutPerformance) || math.IsInf(v.OutPerformance, 0) {
		return fmt.Errorf("%w: out_performance must be finite", ErrInvalidView)
	}
	if len(v.Allocation) == 0 {
		return fmt.Errorf("%w: allocation must reference at least one asset", ErrInvalidView)
	}
	for asset, coeff := range v.Allocation {
		if asset == "" {
			return fmt.Errorf("%w: allocation contains an empty asset id", ErrInvalidView)
		}
		if math.IsNaN(coeff) || math.IsInf(coeff, 0) {
			return fmt.Errorf("%w: allocation coefficient for %s must be finite", ErrInvalidView, asset)
		}
	}
	return nil
}

// Row returns the view's coefficients aligned to the given universe, one
// column per asset, zero for assets the view does not reference. An
// allocation entry outside the universe is an error, never dropped.
func (v View) Row(universe []string) ([]float64, error) {
	index := make(map[string]int, len(universe))
	for i, id := range universe {
		index[id] = i
	}

	row := make([]float64, len(universe))
	for asset, coeff := range v.Allocation {
		i, ok := index[asset]
		if !ok {
			return nil, fmt.Errorf("%w: view %q references %q", ErrUnknownAsset, v.Name, asset)
		}
		row[i] = coeff
	}
	return row, nil
}
