// Package numeric holds small floating-point helpers shared by the fitting
// packages.
package numeric

import "math"

// Clamp limits value to the inclusive range [min, max].
func Clamp(value, min, max float64) float64 {
	if min > max {
		min, max = max, min
	}

	if value < min {
		return min
	}

	if value > max {
		return max
	}

	return value
}

// IsFinite reports whether x is neither NaN nor infinite.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Accumulator is a Neumaier compensated sum. The zero value is ready to use.
type Accumulator struct {
	sum  float64
	comp float64
}

// Add adds x to the running sum.
func (a *Accumulator) Add(x float64) {
	t := a.sum + x
	if math.Abs(a.sum) >= math.Abs(x) {
		a.comp += (a.sum - t) + x
	} else {
		a.comp += (x - t) + a.sum
	}
	a.sum = t
}

// Sum returns the compensated total.
func (a *Accumulator) Sum() float64 {
	return a.sum + a.comp
}

// Dot returns the compensated dot product of a and b. It panics if the
// lengths differ.
func Dot(a, b []float64) float64 {
	if len(a) != len(b) {
		panic("numeric: Dot length mismatch")
	}
	var acc Accumulator
	for i := range a {
		acc.Add(a[i] * b[i])
	}
	return acc.Sum()
}
