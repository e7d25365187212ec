package sparse

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// 3 × 4
//
//	[1 0 2 0]
//	[0 0 0 0]
//	[0 3 0 4]
func sample(t *testing.T) *CSR {
	t.Helper()
	c, err := NewCSR(3, 4, []int{0, 2, 2, 4}, []int{0, 2, 1, 3}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	return c
}

func TestCSRAtMatchesDense(t *testing.T) {
	c := sample(t)
	want := mat.NewDense(3, 4, []float64{
		1, 0, 2, 0,
		0, 0, 0, 0,
		0, 3, 0, 4,
	})

	assert.True(t, mat.Equal(want, c))
	assert.True(t, mat.Equal(want, c.ToDense()))
	assert.True(t, mat.Equal(want.T(), c.T()))
	assert.Equal(t, 4, c.NNZ())

	back := FromDense(want)
	assert.True(t, mat.Equal(c, back))
}

func TestNewCSRValidation(t *testing.T) {
	tests := []struct {
		name    string
		indptr  []int
		indices []int
		data    []float64
	}{
		{"short indptr", []int{0, 1}, []int{0}, []float64{1}},
		{"unsorted columns", []int{0, 2, 2, 2}, []int{2, 1}, []float64{1, 1}},
		{"column out of range", []int{0, 1, 1, 1}, []int{4}, []float64{1}},
		{"data length mismatch", []int{0, 1, 1, 1}, []int{0}, []float64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCSR(3, 4, tt.indptr, tt.indices, tt.data)
			assert.Error(t, err)
		})
	}
}

func TestCSRAtPanicsOutOfRange(t *testing.T) {
	c := sample(t)
	assert.Panics(t, func() { c.At(3, 0) })
	assert.Panics(t, func() { c.At(0, -1) })
}

func TestSelectRows(t *testing.T) {
	c := sample(t)
	sub := c.SelectRows([]int{2, 0})

	r, cc := sub.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 4, cc)
	assert.Equal(t, 4.0, sub.At(0, 3))
	assert.Equal(t, 2.0, sub.At(1, 2))
}

func TestWithColumn(t *testing.T) {
	c := sample(t)
	out := c.WithColumn(1, []float64{7, 5, 0})

	want := mat.NewDense(3, 4, []float64{
		1, 7, 2, 0,
		0, 5, 0, 0,
		0, 0, 0, 4,
	})
	assert.True(t, mat.Equal(want, out))
	// original untouched
	assert.Equal(t, 3.0, c.At(2, 1))

	if diff := cmp.Diff([]float64{0, 0, 3}, c.Column(1)); diff != "" {
		t.Errorf("Column(1) mismatch (-want +got):\n%s", diff)
	}
}

func TestRowOperations(t *testing.T) {
	c := sample(t)

	assert.Equal(t, 1*1.0+2*3.0, c.RowDot(0, []float64{1, 10, 3, 100}))
	assert.Equal(t, 0.0, c.RowDot(1, []float64{1, 1, 1, 1}))

	idx, val := c.RowView(2)
	assert.Equal(t, []int{1, 3}, idx)
	assert.Equal(t, []float64{3, 4}, val)

	var visited int
	c.DoNonZero(func(i, j int, v float64) {
		visited++
		assert.Equal(t, c.At(i, j), v)
	})
	assert.Equal(t, 4, visited)

	assert.Equal(t, []int{1, 1, 1, 1}, c.ColumnNonZeroCounts())
}

func TestNormalizeRows(t *testing.T) {
	c := sample(t).NormalizeRows()
	assert.InDelta(t, 0.6, c.At(2, 1), 1e-12)
	assert.InDelta(t, 0.8, c.At(2, 3), 1e-12)
	assert.Equal(t, 0.0, c.At(1, 0))
}

func TestBuilderAndStack(t *testing.T) {
	b := NewBuilder(4)
	b.AddRow(map[int]float64{2: 2, 0: 1, 3: 0})
	b.AddRow(nil)
	top := b.Build()

	b2 := NewBuilder(4)
	b2.AddRow(map[int]float64{3: 4, 1: 3})
	bottom := b2.Build()

	stacked := Stack(4, top, nil, bottom)
	assert.True(t, mat.Equal(sample(t), stacked))
}
