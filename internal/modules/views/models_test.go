package views

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewView_AssignsIDAndValidates(t *testing.T) {
	view, err := NewView("tech beats utilities", 0.7, 0.02, NewRelativeAllocation("TECH", "UTIL"))

	require.NoError(t, err)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "tech beats utilities", view.Name)
	assert.Equal(t, 0.7, view.Confidence)
	assert.Equal(t, 0.02, view.OutPerformance)
	assert.Equal(t, Allocation{"TECH": 1.0, "UTIL": -1.0}, view.Allocation)

	other, err := NewView("other", 0.5, 0.01, NewAbsoluteAllocation("TECH"))
	require.NoError(t, err)
	assert.NotEqual(t, view.ID, other.ID, "ids must be unique per view")
}

func TestView_Validate(t *testing.T) {
	tests := []struct {
		name string
		view View
	}{
		{"empty id", View{Name: "x", Confidence: 0.5, Allocation: NewAbsoluteAllocation("A")}},
		{"confidence above one", View{ID: "1", Confidence: 1.1, Allocation: NewAbsoluteAllocation("A")}},
		{"negative confidence", View{ID: "1", Confidence: -0.1, Allocation: NewAbsoluteAllocation("A")}},
		{"NaN confidence", View{ID: "1", Confidence: math.NaN(), Allocation: NewAbsoluteAllocation("A")}},
		{"infinite out-performance", View{ID: "1", Confidence: 0.5, OutPerformance: math.Inf(1), Allocation: NewAbsoluteAllocation("A")}},
		{"empty allocation", View{ID: "1", Confidence: 0.5, Allocation: Allocation{}}},
		{"empty asset id in allocation", View{ID: "1", Confidence: 0.5, Allocation: Allocation{"": 1.0}}},
		{"non-finite coefficient", View{ID: "1", Confidence: 0.5, Allocation: Allocation{"A": math.NaN()}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.view.Validate(), ErrInvalidView)
		})
	}

	t.Run("boundary confidences are legal", func(t *testing.T) {
		for _, confidence := range []float64{0.0, 1.0} {
			view := View{ID: "1", Confidence: confidence, Allocation: NewAbsoluteAllocation("A")}
			assert.NoError(t, view.Validate())
		}
	})
}

func TestView_Row(t *testing.T) {
	universe := []string{"AAA", "BBB", "CCC"}

	t.Run("relative view", func(t *testing.T) {
		view, err := NewView("a over c", 0.5, 0.03, NewRelativeAllocation("AAA", "CCC"))
		require.NoError(t, err)

		row, err := view.Row(universe)

		require.NoError(t, err)
		assert.Equal(t, []float64{1, 0, -1}, row)
	})

	t.Run("absolute view", func(t *testing.T) {
		view, err := NewView("b earns", 0.5, 0.05, NewAbsoluteAllocation("BBB"))
		require.NoError(t, err)

		row, err := view.Row(universe)

		require.NoError(t, err)
		assert.Equal(t, []float64{0, 1, 0}, row)
	})

	t.Run("unknown asset is an error, not a dropped entry", func(t *testing.T) {
		view, err := NewView("phantom", 0.5, 0.05, NewAbsoluteAllocation("ZZZ"))
		require.NoError(t, err)

		_, err = view.Row(universe)

		assert.ErrorIs(t, err, ErrUnknownAsset)
	})
}

func TestCollection_MatrixAndOutPerformances(t *testing.T) {
	universe := []string{"AAA", "BBB", "CCC"}

	first, err := NewView("first", 0.5, 0.03, NewRelativeAllocation("AAA", "BBB"))
	require.NoError(t, err)
	second, err := NewView("second", 0.8, 0.07, NewAbsoluteAllocation("CCC"))
	require.NoError(t, err)

	collection, err := NewCollection(first, second)
	require.NoError(t, err)

	matrix, err := collection.Matrix(universe)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{
		{1, -1, 0},
		{0, 0, 1},
	}, matrix, "row order follows collection order")

	assert.Equal(t, []float64{0.03, 0.07}, collection.OutPerformances())
	assert.Equal(t, 2, collection.Len())
	assert.False(t, collection.IsEmpty())
}

func TestCollection_StableAcrossCalls(t *testing.T) {
	universe := []string{"AAA", "BBB"}
	view, err := NewView("v", 0.5, 0.03, NewRelativeAllocation("AAA", "BBB"))
	require.NoError(t, err)
	collection, err := NewCollection(view)
	require.NoError(t, err)

	first, err := collection.Matrix(universe)
	require.NoError(t, err)
	second, err := collection.Matrix(universe)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNewCollection_RejectsDuplicateIDs(t *testing.T) {
	view, err := NewView("v", 0.5, 0.03, NewAbsoluteAllocation("AAA"))
	require.NoError(t, err)

	_, err = NewCollection(view, view)

	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestNewCollection_RejectsInvalidViews(t *testing.T) {
	bad := View{ID: "1", Confidence: 2.0, Allocation: NewAbsoluteAllocation("AAA")}

	_, err := NewCollection(bad)

	assert.ErrorIs(t, err, ErrInvalidView)
}

func TestCollection_ViewsReturnsCopy(t *testing.T) {
	view, err := NewView("v", 0.5, 0.03, NewAbsoluteAllocation("AAA"))
	require.NoError(t, err)
	collection, err := NewCollection(view)
	require.NoError(t, err)

	list := collection.Views()
	list[0].Name = "tampered"

	assert.Equal(t, "v", collection.Views()[0].Name)
}

func TestCollection_EmptyMatrix(t *testing.T) {
	matrix, err := Collection{}.Matrix([]string{"AAA"})

	require.NoError(t, err)
	assert.Empty(t, matrix)
	assert.Empty(t, Collection{}.OutPerformances())
	assert.True(t, Collection{}.IsEmpty())
}
