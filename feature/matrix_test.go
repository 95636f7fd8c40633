package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/rankfit/core"
)

func TestToMatrix_Dense(t *testing.T) {
	X, err := ToMatrix([]Row{Dense{1, 0}, Dense{0, 1}, Dense{2, 0}}, 2)
	require.NoError(t, err)

	r, c := X.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.False(t, X.IsSparse())
	assert.Equal(t, 2.0, X.At(2, 0))
	assert.Equal(t, []float64{0, 1}, X.RowVector(1))
}

func TestToMatrix_DenseInfersDim(t *testing.T) {
	X, err := ToMatrix([]Row{Dense{1, 2, 3}}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, X.Dim())
}

func TestToMatrix_Errors(t *testing.T) {
	tests := []struct {
		name    string
		rows    []Row
		dim     int
		checkFn func(error) bool
	}{
		{
			name:    "sparse without dimension",
			rows:    []Row{Sparse{0: 1}},
			dim:     0,
			checkFn: core.IsConfiguration,
		},
		{
			name:    "sparse index out of range",
			rows:    []Row{Sparse{0: 1}, Sparse{3: 1}},
			dim:     3,
			checkFn: core.IsDimension,
		},
		{
			name:    "negative sparse index",
			rows:    []Row{Sparse{-1: 1}},
			dim:     3,
			checkFn: core.IsDimension,
		},
		{
			name:    "mixed dense and sparse",
			rows:    []Row{Dense{1, 2}, Sparse{0: 1}},
			dim:     2,
			checkFn: core.IsDimension,
		},
		{
			name:    "ragged dense rows",
			rows:    []Row{Dense{1, 2}, Dense{1}},
			dim:     0,
			checkFn: core.IsDimension,
		},
		{
			name:    "dense row longer than configured dimension",
			rows:    []Row{Dense{1, 2, 3}},
			dim:     2,
			checkFn: core.IsDimension,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToMatrix(tt.rows, tt.dim)
			require.Error(t, err)
			assert.True(t, tt.checkFn(err), "unexpected error kind: %v", err)
		})
	}
}

func TestToMatrix_SparseMatchesDense(t *testing.T) {
	dense, err := ToMatrix([]Row{Dense{1, 0, 3}, Dense{0, 2, 0}}, 3)
	require.NoError(t, err)
	sp, err := ToMatrix([]Row{Sparse{0: 1, 2: 3}, Sparse{1: 2}}, 3)
	require.NoError(t, err)
	assert.True(t, sp.IsSparse())

	w := []float64{0.5, -1, 2}
	ds, err := dense.MulVec(w)
	require.NoError(t, err)
	ss, err := sp.MulVec(w)
	require.NoError(t, err)
	assert.InDeltaSlice(t, ds, ss, 1e-12)
	assert.Equal(t, dense.RowVector(0), sp.RowVector(0))
}

func TestMatrix_RowsEqual(t *testing.T) {
	sp, err := ToMatrix([]Row{Sparse{0: 1, 2: 3}, Sparse{2: 3, 0: 1}, Sparse{0: 1}, Sparse{1: 0}}, 3)
	require.NoError(t, err)

	assert.True(t, sp.RowsEqual(0, 1))
	assert.False(t, sp.RowsEqual(0, 2))
	assert.False(t, sp.RowsEqual(2, 0))
	assert.True(t, sp.RowsEqual(3, 3))

	dense, err := FromRows([][]float64{{1, 2}, {1, 2}, {2, 1}})
	require.NoError(t, err)
	assert.True(t, dense.RowsEqual(0, 1))
	assert.False(t, dense.RowsEqual(1, 2))
}

func TestMatrix_MulVecDimensionMismatch(t *testing.T) {
	X, err := FromRows([][]float64{{1, 2}})
	require.NoError(t, err)
	_, err = X.MulVec([]float64{1})
	assert.True(t, core.IsDimension(err))
}

func TestMatrix_Select(t *testing.T) {
	sp, err := ToMatrix([]Row{Sparse{0: 1}, Sparse{1: 2}, Sparse{2: 3}}, 3)
	require.NoError(t, err)

	sub := sp.Select([]int{2, 0})
	assert.True(t, sub.IsSparse())
	assert.Equal(t, 2, sub.Rows())
	assert.Equal(t, []float64{0, 0, 3}, sub.RowVector(0))
	assert.Equal(t, []float64{1, 0, 0}, sub.RowVector(1))
}

func TestMatrix_CheckRow(t *testing.T) {
	X, err := FromRows([][]float64{{1}, {2}})
	require.NoError(t, err)
	assert.NoError(t, X.CheckRow(1))
	assert.True(t, core.IsIndex(X.CheckRow(2)))
	assert.True(t, core.IsIndex(X.CheckRow(-1)))
}
