package spectrum

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// MaxChannels is the largest raw channel count a histogram may hold.
const MaxChannels = 32768

// Errors returned when constructing histograms.
var (
	ErrEmptyHistogram     = errors.New("spectrum: empty histogram")
	ErrInvalidContraction = errors.New("spectrum: invalid contraction factor")
	ErrVarianceLength     = errors.New("spectrum: variance length mismatch")
)

// Accessor is the read-only view of the active spectrum used by the fitter.
//
// BinValue and BinFitWeight take a raw channel index and return the value of
// the contracted bin starting at that channel. Channels outside the histogram
// read as zero.
type Accessor interface {
	BinValue(ch int) float64
	BinFitWeight(ch int) float64
	Contraction() int
}

// HistogramConfig holds the optional settings of a [Histogram].
type HistogramConfig struct {
	Contraction int
	Scale       float64
	Variance    []float64
}

// HistogramOption mutates a HistogramConfig.
type HistogramOption func(*HistogramConfig)

// DefaultHistogramConfig returns an uncontracted, unscaled configuration with
// Poisson variances.
func DefaultHistogramConfig() HistogramConfig {
	return HistogramConfig{
		Contraction: 1,
		Scale:       1,
	}
}

// WithContraction sets the number of raw channels summed into one bin.
func WithContraction(factor int) HistogramOption {
	return func(cfg *HistogramConfig) {
		cfg.Contraction = factor
	}
}

// WithScale multiplies every bin value by scale. Fit weights scale with
// scale squared.
func WithScale(scale float64) HistogramOption {
	return func(cfg *HistogramConfig) {
		if scale != 0 && !math.IsNaN(scale) {
			cfg.Scale = scale
		}
	}
}

// WithVariance supplies explicit per-channel variances, for example after
// background subtraction where the counts no longer carry Poisson
// statistics. The slice must match the histogram length.
func WithVariance(variance []float64) HistogramOption {
	return func(cfg *HistogramConfig) {
		cfg.Variance = variance
	}
}

// ApplyHistogramOptions applies zero or more options to the default config.
func ApplyHistogramOptions(opts ...HistogramOption) HistogramConfig {
	cfg := DefaultHistogramConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Histogram is an in-memory [Accessor] over raw channel counts.
type Histogram struct {
	counts      []float64
	variance    []float64
	contraction int
	scale       float64
}

// NewHistogram copies counts into a new histogram.
func NewHistogram(counts []float64, opts ...HistogramOption) (*Histogram, error) {
	if len(counts) == 0 {
		return nil, ErrEmptyHistogram
	}
	if len(counts) > MaxChannels {
		return nil, fmt.Errorf("spectrum: %d channels exceeds maximum %d", len(counts), MaxChannels)
	}

	cfg := ApplyHistogramOptions(opts...)
	if cfg.Contraction < 1 || cfg.Contraction > len(counts) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidContraction, cfg.Contraction)
	}

	h := &Histogram{
		counts:      make([]float64, len(counts)),
		contraction: cfg.Contraction,
		scale:       cfg.Scale,
	}
	vecmath.ScaleBlock(h.counts, counts, cfg.Scale)

	if cfg.Variance != nil {
		if len(cfg.Variance) != len(counts) {
			return nil, fmt.Errorf("%w: %d != %d", ErrVarianceLength, len(cfg.Variance), len(counts))
		}
		h.variance = make([]float64, len(counts))
		vecmath.ScaleBlock(h.variance, cfg.Variance, cfg.Scale*cfg.Scale)
	}

	return h, nil
}

// Len returns the number of raw channels.
func (h *Histogram) Len() int { return len(h.counts) }

// Contraction returns the number of raw channels per bin.
func (h *Histogram) Contraction() int { return h.contraction }

// Scale returns the scale factor applied to the counts.
func (h *Histogram) Scale() float64 { return h.scale }

// BinValue returns the scaled sum of raw channels [ch, ch+contraction).
func (h *Histogram) BinValue(ch int) float64 {
	return h.sum(h.counts, ch)
}

// BinFitWeight returns the variance of the bin starting at ch. Without
// explicit variances this is the Poisson variance scale²·Σcounts, returned
// as an absolute value.
func (h *Histogram) BinFitWeight(ch int) float64 {
	if h.variance != nil {
		return math.Abs(h.sum(h.variance, ch))
	}
	return math.Abs(h.scale * h.sum(h.counts, ch))
}

func (h *Histogram) sum(data []float64, ch int) float64 {
	lo := ch
	hi := ch + h.contraction
	if lo < 0 {
		lo = 0
	}
	if hi > len(data) {
		hi = len(data)
	}

	var s float64
	for i := lo; i < hi; i++ {
		s += data[i]
	}
	return s
}

// Channels returns the bin start channels in [lo, hi] stepping by the
// contraction factor of acc.
func Channels(acc Accessor, lo, hi int) []int {
	step := acc.Contraction()
	if step < 1 {
		step = 1
	}
	if hi < lo {
		return nil
	}

	out := make([]int, 0, (hi-lo)/step+1)
	for ch := lo; ch <= hi; ch += step {
		out = append(out, ch)
	}
	return out
}

// Values reads the bin values of acc at the given channels.
func Values(acc Accessor, channels []int) []float64 {
	out := make([]float64, len(channels))
	for i, ch := range channels {
		out[i] = acc.BinValue(ch)
	}
	return out
}
