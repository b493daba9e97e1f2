// Package guess estimates starting values for peak fits directly from the
// spectrum.
//
// Both estimators run the same filter over the data: two adjacent
// rectangular windows of equal length are summed and the leading sum is
// subtracted from the trailing one. The result is a smoothed discrete
// derivative whose zero crossing marks a peak centroid and whose extremes
// mark the steepest flanks of the peak.
package guess

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/algo-peakfit/model"
	"github.com/cwbudde/algo-peakfit/spectrum"
)

// Config holds the filter and search lengths, in bins.
type Config struct {
	WindowSize         int
	CentroidHalfSearch int
	WidthHalfSearch    int
	ScanPast           int
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns a 5-bin window, a ±10-bin centroid search and a
// 100-bin width search that stops 10 bins past the last extreme.
func DefaultConfig() Config {
	return Config{
		WindowSize:         5,
		CentroidHalfSearch: 10,
		WidthHalfSearch:    100,
		ScanPast:           10,
	}
}

// WithWindowSize sets the length of each summing window.
func WithWindowSize(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.WindowSize = n
		}
	}
}

// WithCentroidHalfSearch sets how many bins either side of the initial
// position the centroid filter covers.
func WithCentroidHalfSearch(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.CentroidHalfSearch = n
		}
	}
}

// WithWidthHalfSearch sets the maximum scan length of the width search.
func WithWidthHalfSearch(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.WidthHalfSearch = n
		}
	}
}

// ApplyOptions applies zero or more options to the default config.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func windowSum(acc spectrum.Accessor, base, step, from, n int) float64 {
	var s float64
	for j := 0; j < n; j++ {
		s += acc.BinValue(base + step*(from+j))
	}
	return s
}

// Centroid refines an approximate peak position.
//
// The filter is evaluated at every offset of a symmetric neighbourhood of
// init. The bracket between its largest rising and largest falling value
// contains the peak, and the offset inside the bracket whose value is
// closest to zero is taken, refined by linear interpolation towards the
// neighbouring offset of opposite sign.
func Centroid(acc spectrum.Accessor, init float64, opts ...Option) float64 {
	cfg := ApplyOptions(opts...)
	step := acc.Contraction()
	w := cfg.WindowSize
	half := cfg.CentroidHalfSearch
	n := 2*half - w
	if n < 2 {
		return init
	}

	base := int(init)
	filter := make([]float64, n)
	for i := range filter {
		low := windowSum(acc, base, step, i-half, w)
		high := windowSum(acc, base, step, i-half+w, w)
		filter[i] = high - low
	}
	pos := func(i float64) float64 {
		return float64(base) + float64(step)*(i-float64(half)+float64(w)-0.5)
	}

	lo := floats.MaxIdx(filter)
	hi := floats.MinIdx(filter)
	if lo > hi {
		lo, hi = hi, lo
	}

	best := lo
	for i := lo; i <= hi; i++ {
		if math.Abs(filter[i]) < math.Abs(filter[best]) {
			best = i
		}
	}
	if filter[best] == 0 {
		return pos(float64(best))
	}

	for _, nb := range []int{best - 1, best + 1} {
		if nb < lo || nb > hi {
			continue
		}
		if math.Signbit(filter[nb]) != math.Signbit(filter[best]) {
			frac := filter[best] / (filter[best] - filter[nb])
			return pos(float64(best) + frac*float64(nb-best))
		}
	}
	return pos(float64(best))
}

// Width estimates the Gaussian sigma of a peak centred at centroid.
//
// The filter is scanned forward from the centroid for its most negative
// value and backward for its most positive value; a scan ends ScanPast bins
// after the last new extreme and fails if it reaches the end of the search
// length. The distance between the two flanks is converted with
// FWHM = 2.3548·σ; if only one flank is found the single-sided distance is
// converted with 1.1774·σ. Without either flank, fallback is returned, but
// never less than two bins.
func Width(acc spectrum.Accessor, centroid, fallback float64, opts ...Option) float64 {
	cfg := ApplyOptions(opts...)
	step := acc.Contraction()
	w := cfg.WindowSize
	base := int(centroid)
	limit := cfg.WidthHalfSearch - w

	upper, okUpper := scanFlank(cfg, limit, func(i int) (float64, float64) {
		low := windowSum(acc, base, step, i, w)
		high := windowSum(acc, base, step, i+w, w)
		return low - high, float64(base) + float64(step)*(float64(i+w)-0.5)
	})
	lower, okLower := scanFlank(cfg, limit, func(i int) (float64, float64) {
		high := windowSum(acc, base, step, -i-w+1, w)
		low := windowSum(acc, base, step, -i-2*w+1, w)
		return high - low, float64(base) + float64(step)*(float64(-i-w)+0.5)
	})

	okUpper = okUpper && upper > centroid
	okLower = okLower && lower < centroid

	halfMax := model.FWHMFactor / 2
	switch {
	case okUpper && okLower:
		return (upper - lower) / model.FWHMFactor
	case okUpper:
		return (upper - centroid) / halfMax
	case okLower:
		return (centroid - lower) / halfMax
	}

	if minWidth := 2 * float64(step); fallback < minWidth {
		return minWidth
	}
	return fallback
}

// scanFlank walks the filter away from the centroid and returns the
// position of its largest positive value. eval returns the filter value
// oriented so that the flank is positive, and the position it refers to.
func scanFlank(cfg Config, limit int, eval func(i int) (float64, float64)) (float64, bool) {
	best := math.Inf(-1)
	var bestPos float64
	since := 0
	for i := 0; i < limit; i++ {
		v, p := eval(i)
		if v > best {
			best = v
			bestPos = p
			since = 0
		} else {
			since++
		}
		if since >= cfg.ScanPast {
			return bestPos, best > 0
		}
	}
	return 0, false
}

// NearOthers reports whether guesses[i] lies closer than dist to any other
// guess.
func NearOthers(guesses []float64, i int, dist float64) bool {
	for j, g := range guesses {
		if j != i && math.Abs(guesses[i]-g) < dist {
			return true
		}
	}
	return false
}

// Amplitude returns the background-subtracted bin value at a position,
// used as the starting peak amplitude.
func Amplitude(acc spectrum.Accessor, pos float64, background func(x float64) float64) float64 {
	return acc.BinValue(int(pos)) - background(pos)
}
