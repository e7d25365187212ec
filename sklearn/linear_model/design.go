package linear_model

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textexplain/core/sparse"
)

// design is the read access the solvers need from X.
// CSR inputs stay sparse, everything else is densified once.
type design interface {
	rows() int
	cols() int
	// dot returns x_i · w[:cols]
	dot(i int, w []float64) float64
	// axpy adds a * x_i to g[:cols]
	axpy(i int, a float64, g []float64)
}

func newDesign(X mat.Matrix) design {
	switch m := X.(type) {
	case *sparse.CSR:
		return csrDesign{m}
	case *mat.Dense:
		return denseDesign{m}
	default:
		return denseDesign{mat.DenseCopyOf(X)}
	}
}

type csrDesign struct{ m *sparse.CSR }

func (d csrDesign) rows() int {
	r, _ := d.m.Dims()
	return r
}

func (d csrDesign) cols() int {
	_, c := d.m.Dims()
	return c
}

func (d csrDesign) dot(i int, w []float64) float64 { return d.m.RowDot(i, w) }

func (d csrDesign) axpy(i int, a float64, g []float64) {
	idx, val := d.m.RowView(i)
	for k, j := range idx {
		g[j] += a * val[k]
	}
}

type denseDesign struct{ m *mat.Dense }

func (d denseDesign) rows() int {
	r, _ := d.m.Dims()
	return r
}

func (d denseDesign) cols() int {
	_, c := d.m.Dims()
	return c
}

func (d denseDesign) dot(i int, w []float64) float64 {
	row := d.m.RawRowView(i)
	return floats.Dot(row, w[:len(row)])
}

func (d denseDesign) axpy(i int, a float64, g []float64) {
	row := d.m.RawRowView(i)
	floats.AddScaled(g[:len(row)], a, row)
}
