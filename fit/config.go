package fit

import (
	log "github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-peakfit/model"
)

// Config holds the optimizer limits and collaborators of a Fitter.
type Config struct {
	MaxPeaks int

	// ConvergenceFrac is the largest accepted change of an active parameter,
	// relative to its value or to its current uncertainty.
	ConvergenceFrac float64

	FirstPassIterations int
	RetryIterations     int
	SkewIterations      int

	InitialDamping float64
	DampingCap     float64

	// MinSeparation is the distance in channels below which initial peak
	// positions are used as given instead of being refined.
	MinSeparation float64

	// SkewRatio is the starting value of R when the skew parameters are
	// released; β starts at half the width of peak 0.
	SkewRatio float64

	WidthModel model.WidthModel

	Logger  *log.Entry
	Metrics *Metrics
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the limits used by the interactive fitter.
func DefaultConfig() Config {
	return Config{
		MaxPeaks:            10,
		ConvergenceFrac:     0.001,
		FirstPassIterations: 50,
		RetryIterations:     100,
		SkewIterations:      100,
		InitialDamping:      0.001,
		DampingCap:          2.0,
		MinSeparation:       10,
		SkewRatio:           0.05,
		WidthModel:          model.DefaultWidthModel(),
		Logger:              log.NewEntry(log.StandardLogger()),
	}
}

// WithMaxPeaks sets the maximum number of peaks per fit.
func WithMaxPeaks(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxPeaks = n
		}
	}
}

// WithConvergenceFrac sets the convergence threshold.
func WithConvergenceFrac(frac float64) Option {
	return func(cfg *Config) {
		if frac > 0 {
			cfg.ConvergenceFrac = frac
		}
	}
}

// WithIterations sets the iteration budgets of the first pass, its retry
// and the skew pass. Non-positive values keep the default.
func WithIterations(first, retry, skew int) Option {
	return func(cfg *Config) {
		if first > 0 {
			cfg.FirstPassIterations = first
		}
		if retry > 0 {
			cfg.RetryIterations = retry
		}
		if skew > 0 {
			cfg.SkewIterations = skew
		}
	}
}

// WithDamping sets the initial damping factor and its upper limit.
func WithDamping(initial, limit float64) Option {
	return func(cfg *Config) {
		if initial >= 0 {
			cfg.InitialDamping = initial
		}
		if limit > 0 {
			cfg.DampingCap = limit
		}
	}
}

// WithMinSeparation sets the distance below which peak positions are not
// refined.
func WithMinSeparation(ch float64) Option {
	return func(cfg *Config) {
		if ch >= 0 {
			cfg.MinSeparation = ch
		}
	}
}

// WithWidthModel sets the detector resolution used as width fallback and
// to derive linked width ratios.
func WithWidthModel(m model.WidthModel) Option {
	return func(cfg *Config) {
		cfg.WidthModel = m
	}
}

// WithLogger sets the log entry used for state transitions and outcomes.
func WithLogger(l *log.Entry) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.Logger = l
		}
	}
}

// WithMetrics enables metric collection.
func WithMetrics(m *Metrics) Option {
	return func(cfg *Config) {
		cfg.Metrics = m
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
