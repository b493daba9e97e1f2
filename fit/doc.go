// Package fit fits a quadratic background plus a sum of Gaussian or skewed
// Gaussian peaks to a channel range of a histogram.
//
// A Fitter owns one spectrum accessor and runs at most one fit at a time.
// Each fit creates a Session seeded from the data: the background from the
// counts at the range limits, peak centroids, amplitudes and widths from
// the guess package. The optimizer then minimises the weighted squared
// residuals with damped Gauss-Newton steps on the whitened normal
// equations. Skewed fits run a symmetric pass first and release the tail
// parameters R and β afterwards.
//
// Parameter uncertainties come from the undamped covariance matrix at the
// solution, combined in quadrature with the Cramér-Rao bound of a Poisson
// counting experiment for the peak amplitude, centroid and width.
//
// Fits run asynchronously with Start, which reports state transitions on a
// channel, or synchronously with Run.
package fit
