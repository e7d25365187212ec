package errors

import (
	"math"
)

// CheckNumericalStability returns a NumericalInstabilityError when any value
// is NaN or infinite.
func CheckNumericalStability(operation string, values []float64, iteration int) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewNumericalInstabilityError(operation, values, iteration)
		}
	}
	return nil
}

// CheckScalar is CheckNumericalStability for a single value.
func CheckScalar(operation string, value float64, iteration int) error {
	return CheckNumericalStability(operation, []float64{value}, iteration)
}

// SafeDivide performs division with protection against division by zero.
// Returns fallback if denominator is zero or close to zero.
func SafeDivide(numerator, denominator, fallback float64) float64 {
	if math.Abs(denominator) < 1e-12 {
		return fallback
	}
	return numerator / denominator
}

// Sigmoid computes 1/(1+exp(-z)) without overflowing for large |z|.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1.0 / (1.0 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1.0 + ez)
}

// LogSumExp computes log(sum(exp(values))) in a numerically stable way.
func LogSumExp(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(-1)
	}

	maxVal := values[0]
	for _, v := range values[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	// If max is -Inf, all values are -Inf
	if math.IsInf(maxVal, -1) {
		return math.Inf(-1)
	}

	sum := 0.0
	for _, v := range values {
		sum += math.Exp(v - maxVal)
	}

	return maxVal + math.Log(sum)
}

// Softmax writes exp(v - LogSumExp(values)) into dst and returns it.
// dst may alias values.
func Softmax(dst, values []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(values))
	}
	lse := LogSumExp(values)
	for i, v := range values {
		dst[i] = math.Exp(v - lse)
	}
	return dst
}
