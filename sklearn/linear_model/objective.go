package linear_model

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/textexplain/pkg/errors"
)

// objective is the L2-penalized mean log-loss
//
//	f(θ) = 1/n Σ_i loss_i + ||W||² / (2·C·n)
//
// θ holds k rows of (nFeatures weights, intercept). k == 1 means a sigmoid
// model against targets y01, k > 1 a softmax model against class codes y.
// Intercepts are never penalized.
type objective struct {
	d            design
	k            int
	y01          []float64
	y            []int
	alpha        float64 // 1 / (C·n), 0 without penalty
	fitIntercept bool

	evals   int
	lastX   []float64
	lastF   float64
	lastG   []float64
	scratch []float64
	err     error
}

func newObjective(d design, k int, C float64, penalty string, fitIntercept bool) *objective {
	o := &objective{d: d, k: k, fitIntercept: fitIntercept}
	if penalty == "l2" && C > 0 && !math.IsInf(C, 1) {
		o.alpha = 1 / (C * float64(d.rows()))
	}
	o.scratch = make([]float64, k)
	return o
}

func (o *objective) width() int { return o.d.cols() + 1 }

func (o *objective) dim() int { return o.k * o.width() }

// Func implements optimize.Problem.Func.
func (o *objective) Func(theta []float64) float64 {
	o.evaluate(theta)
	return o.lastF
}

// Grad implements optimize.Problem.Grad.
func (o *objective) Grad(grad, theta []float64) {
	o.evaluate(theta)
	copy(grad, o.lastG)
}

func (o *objective) evaluate(theta []float64) {
	if o.lastX != nil && floats.Equal(o.lastX, theta) {
		return
	}
	if o.lastX == nil {
		o.lastX = make([]float64, len(theta))
		o.lastG = make([]float64, len(theta))
	}
	copy(o.lastX, theta)
	for i := range o.lastG {
		o.lastG[i] = 0
	}
	o.evals++

	n := o.d.rows()
	nf := o.d.cols()
	w := o.width()
	inv := 1 / float64(n)
	var loss float64

	for i := 0; i < n; i++ {
		if o.k == 1 {
			z := o.d.dot(i, theta[:nf]) + theta[nf]
			loss += softplus(z) - o.y01[i]*z
			r := (errors.Sigmoid(z) - o.y01[i]) * inv
			o.d.axpy(i, r, o.lastG[:nf])
			o.lastG[nf] += r
			continue
		}
		z := o.scratch
		for c := 0; c < o.k; c++ {
			row := theta[c*w : (c+1)*w]
			z[c] = o.d.dot(i, row) + row[nf]
		}
		lse := errors.LogSumExp(z)
		loss += lse - z[o.y[i]]
		for c := 0; c < o.k; c++ {
			p := math.Exp(z[c] - lse)
			if c == o.y[i] {
				p--
			}
			r := p * inv
			o.d.axpy(i, r, o.lastG[c*w:c*w+nf])
			o.lastG[c*w+nf] += r
		}
	}
	loss *= inv

	for c := 0; c < o.k; c++ {
		row := theta[c*w : c*w+nf]
		g := o.lastG[c*w : c*w+nf]
		if o.alpha > 0 {
			var sq float64
			for j, v := range row {
				sq += v * v
				g[j] += o.alpha * v
			}
			loss += 0.5 * o.alpha * sq
		}
		if !o.fitIntercept {
			o.lastG[c*w+nf] = 0
		}
	}

	if err := errors.CheckScalar("loss_calculation", loss, o.evals); err != nil && o.err == nil {
		o.err = err
	}
	o.lastF = loss
}

// softplus returns log(1 + exp(z)) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

func maxAbs(v []float64) float64 {
	var m float64
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}
