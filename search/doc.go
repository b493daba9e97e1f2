// Package search proposes peak positions in a histogram range.
//
// The range is correlated with the negative second derivative of a
// Gaussian, a zero-sum kernel that removes constant and linear
// backgrounds and responds positively to peaks of similar width. The
// correlation runs through an FFT. Local maxima of the filtered data whose
// significance, the filter output over its Poisson standard deviation,
// exceeds a threshold are reported.
package search
