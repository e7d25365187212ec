package sparse

import "sort"

// Builder assembles a CSR matrix row by row.
type Builder struct {
	cols    int
	indptr  []int
	indices []int
	data    []float64
}

// NewBuilder returns a builder for a matrix with the given number of columns.
func NewBuilder(cols int) *Builder {
	return &Builder{cols: cols, indptr: []int{0}}
}

// AddRow appends a row given as column → value. Zero values are skipped.
func (b *Builder) AddRow(row map[int]float64) {
	cols := make([]int, 0, len(row))
	for j, v := range row {
		if v != 0 {
			cols = append(cols, j)
		}
	}
	sort.Ints(cols)
	vals := make([]float64, len(cols))
	for k, j := range cols {
		vals[k] = row[j]
	}
	b.appendSorted(cols, vals)
}

func (b *Builder) appendSorted(cols []int, vals []float64) {
	b.indices = append(b.indices, cols...)
	b.data = append(b.data, vals...)
	b.indptr = append(b.indptr, len(b.indices))
}

// Rows returns the number of rows added so far.
func (b *Builder) Rows() int { return len(b.indptr) - 1 }

// Build returns the matrix. The builder must not be used afterwards.
func (b *Builder) Build() *CSR {
	return &CSR{
		rows:    len(b.indptr) - 1,
		cols:    b.cols,
		indptr:  b.indptr,
		indices: b.indices,
		data:    b.data,
	}
}

// Stack concatenates matrices with the same number of columns vertically.
// Chunked parallel transforms build one block per worker and stack them.
func Stack(cols int, blocks ...*CSR) *CSR {
	b := NewBuilder(cols)
	for _, blk := range blocks {
		if blk == nil {
			continue
		}
		for i := 0; i < blk.rows; i++ {
			idx, val := blk.RowView(i)
			b.appendSorted(idx, val)
		}
	}
	return b.Build()
}
