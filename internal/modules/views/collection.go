package views

import "fmt"

// Collection is an ordered set of views with unique ids. Row order of the
// view matrix and entry order of the out-performance vector both follow the
// collection order and are stable across calls.
type Collection struct {
	views []View
}

// NewCollection validates every view and rejects duplicate ids.
func NewCollection(list ...View) (Collection, error) {
	seen := make(map[string]bool, len(list))
	views := make([]View, len(list))
	for i, v := range list {
		if err := v.Validate(); err != nil {
			return Collection{}, err
		}
		if seen[v.ID] {
			return Collection{}, fmt.Errorf("%w: %s", ErrDuplicateID, v.ID)
		}
		seen[v.ID] = true
		views[i] = v
	}
	return Collection{views: views}, nil
}

// Len returns the number of views.
func (c Collection) Len() int {
	return len(c.views)
}

// IsEmpty reports whether the collection holds no views.
func (c Collection) IsEmpty() bool {
	return len(c.views) == 0
}

// Views returns the views in collection order. The slice is a fresh copy.
func (c Collection) Views() []View {
	out := make([]View, len(c.views))
	copy(out, c.views)
	return out
}

// Matrix builds the view matrix P against the given universe: one row per
// view, one column per asset, in collection and universe order.
func (c Collection) Matrix(universe []string) ([][]float64, error) {
	matrix := make([][]float64, len(c.views))
	for i, v := range c.views {
		row, err := v.Row(universe)
		if err != nil {
			return nil, err
		}
		matrix[i] = row
	}
	return matrix, nil
}

// OutPerformances builds the Q vector: one asserted excess return per view,
// in collection order.
func (c Collection) OutPerformances() []float64 {
	out := make([]float64, len(c.views))
	for i, v := range c.views {
		out[i] = v.OutPerformance
	}
	return out
}
