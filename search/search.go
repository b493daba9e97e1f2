package search

import (
	"errors"
	"fmt"
	"math"
	"sort"

	algofft "github.com/MeKo-Christian/algo-fft"
	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/algo-peakfit/spectrum"
)

var (
	ErrInvalidRange = errors.New("search: invalid range")
	ErrInvalidSigma = errors.New("search: kernel sigma must be positive")
)

// Config holds the search parameters.
type Config struct {
	// Sigma is the expected peak width (Gaussian sigma) in channels.
	Sigma float64
	// Threshold is the minimum significance of a reported peak.
	Threshold float64
	// MaxPeaks caps the number of reported peaks; the most significant
	// are kept.
	MaxPeaks int
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns sigma 3 channels, threshold 5 and at most 10 peaks.
func DefaultConfig() Config {
	return Config{
		Sigma:     3,
		Threshold: 5,
		MaxPeaks:  10,
	}
}

// WithSigma sets the kernel width in channels.
func WithSigma(sigma float64) Option {
	return func(cfg *Config) {
		cfg.Sigma = sigma
	}
}

// WithThreshold sets the minimum significance.
func WithThreshold(t float64) Option {
	return func(cfg *Config) {
		cfg.Threshold = t
	}
}

// WithMaxPeaks sets the maximum number of reported peaks.
func WithMaxPeaks(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxPeaks = n
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

// Candidate is a proposed peak.
type Candidate struct {
	Position     float64
	Significance float64
}

// Find returns the positions of the candidates found by Scan, in
// ascending order.
func Find(acc spectrum.Accessor, lo, hi int, opts ...Option) ([]float64, error) {
	cands, err := Scan(acc, lo, hi, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cands))
	for i, c := range cands {
		out[i] = c.Position
	}
	return out, nil
}

// Scan filters the bins of acc in [lo, hi] and returns the significant
// local maxima sorted by position.
func Scan(acc spectrum.Accessor, lo, hi int, opts ...Option) ([]Candidate, error) {
	cfg := ApplyOptions(opts...)
	if cfg.Sigma <= 0 || math.IsNaN(cfg.Sigma) {
		return nil, ErrInvalidSigma
	}
	if lo < 0 || hi <= lo {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, lo, hi)
	}

	channels := spectrum.Channels(acc, lo, hi)
	if len(channels) < 3 {
		return nil, fmt.Errorf("%w: %d bins", ErrInvalidRange, len(channels))
	}
	y := spectrum.Values(acc, channels)

	step := float64(acc.Contraction())
	kernel := Kernel(cfg.Sigma / step)
	kernelSq := make([]float64, len(kernel))
	for i, k := range kernel {
		kernelSq[i] = k * k
	}

	// Extend both ends by the last bin value so the zero-sum kernel sees a
	// flat continuation instead of a step.
	half := len(kernel) / 2
	padded := make([]float64, len(y)+2*half)
	for i := range padded {
		j := min(max(i-half, 0), len(y)-1)
		padded[i] = y[j]
	}
	variance := make([]float64, len(padded))
	for i, v := range padded {
		variance[i] = math.Abs(v)
	}

	filtered, err := correlate(padded, kernel)
	if err != nil {
		return nil, err
	}
	noise, err := correlate(variance, kernelSq)
	if err != nil {
		return nil, err
	}

	m := len(y)
	resp := filtered[half : half+m]
	sd := noise[half : half+m]

	var cands []Candidate
	for i := 1; i < m-1; i++ {
		if !(resp[i] > resp[i-1] && resp[i] >= resp[i+1]) || sd[i] <= 0 {
			continue
		}
		z := resp[i] / math.Sqrt(sd[i])
		if z < cfg.Threshold {
			continue
		}
		cands = append(cands, Candidate{
			Position:     float64(channels[i]) + step*vertexOffset(resp[i-1], resp[i], resp[i+1]),
			Significance: z,
		})
	}

	if len(cands) > cfg.MaxPeaks {
		neg := make([]float64, len(cands))
		for i, c := range cands {
			neg[i] = -c.Significance
		}
		idx := make([]int, len(cands))
		floats.Argsort(neg, idx)
		kept := make([]Candidate, cfg.MaxPeaks)
		for i := range kept {
			kept[i] = cands[idx[i]]
		}
		cands = kept
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].Position < cands[j].Position })
	return cands, nil
}

// Kernel returns the zero-sum negative second derivative of a Gaussian
// with the given sigma in bins, sampled over ±4 sigma.
func Kernel(sigma float64) []float64 {
	half := int(math.Ceil(4 * sigma))
	if half < 2 {
		half = 2
	}
	k := make([]float64, 2*half+1)
	s2 := sigma * sigma
	for i := range k {
		t := float64(i - half)
		k[i] = (1 - t*t/s2) * math.Exp(-0.5*t*t/s2)
	}
	mean := floats.Sum(k) / float64(len(k))
	floats.AddConst(-mean, k)
	return k
}

// vertexOffset returns the abscissa of the parabola through (-1, a),
// (0, b), (1, c), relative to the middle point.
func vertexOffset(a, b, c float64) float64 {
	den := a - 2*b + c
	if den == 0 {
		return 0
	}
	d := 0.5 * (a - c) / den
	return math.Max(-0.5, math.Min(0.5, d))
}

// correlate returns out[i] = Σ_j x[i+j-half]·k[j] for a kernel of odd
// length 2·half+1, with zeros outside x.
func correlate(x, k []float64) ([]float64, error) {
	n := len(x) + len(k) - 1
	size := 1
	for size < n {
		size <<= 1
	}

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("search: failed to create FFT plan: %w", err)
	}

	xs := make([]complex128, size)
	ks := make([]complex128, size)
	for i, v := range x {
		xs[i] = complex(v, 0)
	}
	for i, v := range k {
		ks[i] = complex(v, 0)
	}

	xf := make([]complex128, size)
	kf := make([]complex128, size)
	if err := plan.Forward(xf, xs); err != nil {
		return nil, fmt.Errorf("search: forward FFT failed: %w", err)
	}
	if err := plan.Forward(kf, ks); err != nil {
		return nil, fmt.Errorf("search: forward FFT failed: %w", err)
	}
	for i := range xf {
		xf[i] *= kf[i]
	}
	if err := plan.Inverse(xs, xf); err != nil {
		return nil, fmt.Errorf("search: inverse FFT failed: %w", err)
	}

	// The kernel is symmetric, so convolution equals correlation and the
	// centred output starts at index half.
	half := len(k) / 2
	out := make([]float64, len(x))
	for i := range out {
		out[i] = real(xs[i+half])
	}
	return out, nil
}
