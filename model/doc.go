// Package model evaluates the peak shape used for gamma-ray spectrum fits.
//
// A fit function is a quadratic background plus a sum of peaks. Every peak is
// a Gaussian, optionally mixed with a skewed Gaussian (a Gaussian convolved
// with a one-sided exponential) that models the low-energy tail:
//
//	f(x)    = A + B·x + C·x² + Σ peak_i(x)
//	peak(x) = amp·[(1-R)·G(x) + R·S(x)]
//	G(x)    = exp(-u²/(2σ²))                      u = x - centroid
//	S(x)    = exp(u/β)·erfc(u/(√2σ) + σ/(√2β))
//
// The parameter vector layout is fixed: indices 0-2 hold the background
// coefficients, 3 the skew ratio R, 4 the skew decay β, 5 is reserved, and
// each peak occupies three slots (amplitude, centroid, width) from index 6.
//
// Analytic first derivatives with respect to every parameter class are
// provided for the least-squares normal equations, together with the
// closed-form peak areas.
package model
