// Package sparse provides a compressed sparse row matrix for bag-of-words
// counts. CSR implements gonum's mat.Matrix so it can be passed anywhere a
// dense matrix is accepted; estimators that know about it take a fast path.
package sparse

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textexplain/pkg/errors"
)

var _ mat.Matrix = (*CSR)(nil)

// CSR is an immutable rows × cols matrix in compressed sparse row format.
// Column indices within a row are strictly increasing.
type CSR struct {
	rows, cols int
	indptr     []int
	indices    []int
	data       []float64
}

// NewCSR validates and wraps the three CSR arrays. The slices are not copied.
func NewCSR(rows, cols int, indptr, indices []int, data []float64) (*CSR, error) {
	if rows < 0 || cols < 0 {
		return nil, errors.NewValueError("NewCSR", "negative dimension")
	}
	if len(indptr) != rows+1 {
		return nil, errors.NewDimensionError("NewCSR", rows+1, len(indptr), 0)
	}
	if indptr[0] != 0 || indptr[rows] != len(indices) || len(indices) != len(data) {
		return nil, errors.NewValueError("NewCSR", "inconsistent indptr, indices and data lengths")
	}
	for i := 0; i < rows; i++ {
		if indptr[i] > indptr[i+1] {
			return nil, errors.NewValueError("NewCSR", "indptr must be non-decreasing")
		}
		prev := -1
		for p := indptr[i]; p < indptr[i+1]; p++ {
			j := indices[p]
			if j <= prev || j >= cols {
				return nil, errors.NewValueError("NewCSR", "column indices must be sorted, unique and < cols")
			}
			prev = j
		}
	}
	return &CSR{rows: rows, cols: cols, indptr: indptr, indices: indices, data: data}, nil
}

// Dims returns the number of rows and columns.
func (c *CSR) Dims() (r, cc int) { return c.rows, c.cols }

// At returns the element at row i, column j.
func (c *CSR) At(i, j int) float64 {
	if uint(i) >= uint(c.rows) {
		panic(mat.ErrRowAccess)
	}
	if uint(j) >= uint(c.cols) {
		panic(mat.ErrColAccess)
	}
	lo, hi := c.indptr[i], c.indptr[i+1]
	k := lo + sort.SearchInts(c.indices[lo:hi], j)
	if k < hi && c.indices[k] == j {
		return c.data[k]
	}
	return 0
}

// T returns the implicit transpose.
func (c *CSR) T() mat.Matrix { return mat.Transpose{Matrix: c} }

// NNZ returns the number of stored entries.
func (c *CSR) NNZ() int { return len(c.data) }

// RowView returns the stored column indices and values of row i.
// The returned slices alias the matrix and must not be modified.
func (c *CSR) RowView(i int) (indices []int, values []float64) {
	lo, hi := c.indptr[i], c.indptr[i+1]
	return c.indices[lo:hi], c.data[lo:hi]
}

// DoNonZero calls fn for each stored entry in row-major order.
func (c *CSR) DoNonZero(fn func(i, j int, v float64)) {
	for i := 0; i < c.rows; i++ {
		for p := c.indptr[i]; p < c.indptr[i+1]; p++ {
			fn(i, c.indices[p], c.data[p])
		}
	}
}

// DoRowNonZero calls fn for each stored entry of row i.
func (c *CSR) DoRowNonZero(i int, fn func(i, j int, v float64)) {
	for p := c.indptr[i]; p < c.indptr[i+1]; p++ {
		fn(i, c.indices[p], c.data[p])
	}
}

// RowDot returns the dot product of row i with w (len(w) == cols).
func (c *CSR) RowDot(i int, w []float64) float64 {
	var s float64
	for p := c.indptr[i]; p < c.indptr[i+1]; p++ {
		s += c.data[p] * w[c.indices[p]]
	}
	return s
}

// ToDense materializes the matrix.
func (c *CSR) ToDense() *mat.Dense {
	if c.rows == 0 || c.cols == 0 {
		return &mat.Dense{}
	}
	d := mat.NewDense(c.rows, c.cols, nil)
	c.DoNonZero(func(i, j int, v float64) { d.Set(i, j, v) })
	return d
}

// SelectRows returns a new matrix made of the given rows in order.
// Cross-validation uses it to cut fold subsets without densifying.
func (c *CSR) SelectRows(rows []int) *CSR {
	indptr := make([]int, len(rows)+1)
	nnz := 0
	for k, i := range rows {
		nnz += c.indptr[i+1] - c.indptr[i]
		indptr[k+1] = nnz
	}
	indices := make([]int, 0, nnz)
	data := make([]float64, 0, nnz)
	for _, i := range rows {
		lo, hi := c.indptr[i], c.indptr[i+1]
		indices = append(indices, c.indices[lo:hi]...)
		data = append(data, c.data[lo:hi]...)
	}
	return &CSR{rows: len(rows), cols: c.cols, indptr: indptr, indices: indices, data: data}
}

// Column returns column j as a dense slice of length rows.
func (c *CSR) Column(j int) []float64 {
	out := make([]float64, c.rows)
	for i := 0; i < c.rows; i++ {
		out[i] = c.At(i, j)
	}
	return out
}

// WithColumn returns a copy whose column j is replaced by values (len == rows).
// Zeros in values are not stored.
func (c *CSR) WithColumn(j int, values []float64) *CSR {
	indptr := make([]int, c.rows+1)
	indices := make([]int, 0, len(c.indices)+c.rows)
	data := make([]float64, 0, len(c.data)+c.rows)
	for i := 0; i < c.rows; i++ {
		inserted := values[i] == 0
		for p := c.indptr[i]; p < c.indptr[i+1]; p++ {
			col := c.indices[p]
			if col == j {
				continue
			}
			if !inserted && col > j {
				indices = append(indices, j)
				data = append(data, values[i])
				inserted = true
			}
			indices = append(indices, col)
			data = append(data, c.data[p])
		}
		if !inserted {
			indices = append(indices, j)
			data = append(data, values[i])
		}
		indptr[i+1] = len(indices)
	}
	return &CSR{rows: c.rows, cols: c.cols, indptr: indptr, indices: indices, data: data}
}

// Map returns a copy with fn applied to every stored value.
// Values mapped to zero stay stored; use it for monotone rescaling only.
func (c *CSR) Map(fn func(i, j int, v float64) float64) *CSR {
	data := make([]float64, len(c.data))
	for i := 0; i < c.rows; i++ {
		for p := c.indptr[i]; p < c.indptr[i+1]; p++ {
			data[p] = fn(i, c.indices[p], c.data[p])
		}
	}
	return &CSR{rows: c.rows, cols: c.cols, indptr: c.indptr, indices: c.indices, data: data}
}

// ColumnNonZeroCounts returns, per column, the number of rows with a stored
// non-zero value (document frequency for a count matrix).
func (c *CSR) ColumnNonZeroCounts() []int {
	out := make([]int, c.cols)
	for p, j := range c.indices {
		if c.data[p] != 0 {
			out[j]++
		}
	}
	return out
}

// NormalizeRows returns a copy whose rows have unit L2 norm. Empty rows are kept.
func (c *CSR) NormalizeRows() *CSR {
	norms := make([]float64, c.rows)
	for i := 0; i < c.rows; i++ {
		var s float64
		for p := c.indptr[i]; p < c.indptr[i+1]; p++ {
			s += c.data[p] * c.data[p]
		}
		norms[i] = math.Sqrt(s)
	}
	return c.Map(func(i, _ int, v float64) float64 {
		if norms[i] == 0 {
			return v
		}
		return v / norms[i]
	})
}

// FromDense converts any mat.Matrix into CSR, dropping zeros.
func FromDense(m mat.Matrix) *CSR {
	if c, ok := m.(*CSR); ok {
		return c
	}
	r, cc := m.Dims()
	b := NewBuilder(cc)
	for i := 0; i < r; i++ {
		var idx []int
		var val []float64
		for j := 0; j < cc; j++ {
			if v := m.At(i, j); v != 0 {
				idx = append(idx, j)
				val = append(val, v)
			}
		}
		b.appendSorted(idx, val)
	}
	return b.Build()
}
