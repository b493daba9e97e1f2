package testutil

import (
	"github.com/cwbudde/algo-vecmath"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cwbudde/algo-peakfit/model"
)

// Peak describes one synthetic peak.
type Peak struct {
	Amplitude float64
	Centroid  float64
	Width     float64
}

// Background describes a synthetic quadratic background A + B·x + C·x².
type Background struct {
	A, B, C float64
}

// GaussianSpectrum returns length channels holding a noiseless quadratic
// background plus Gaussian peaks, each evaluated at the channel index.
func GaussianSpectrum(length int, bg Background, peaks ...Peak) []float64 {
	return SkewedSpectrum(length, bg, 0, 0, peaks...)
}

// SkewedSpectrum is like GaussianSpectrum but mixes every peak with a skewed
// tail of ratio r and decay beta.
func SkewedSpectrum(length int, bg Background, r, beta float64, peaks ...Peak) []float64 {
	out := make([]float64, length)
	for i := range out {
		x := float64(i)
		out[i] = bg.A + bg.B*x + bg.C*x*x
	}

	params := make([]float64, model.NumParams(1))
	params[model.IndexR] = r
	params[model.IndexBeta] = beta
	shape := &model.Shape{Params: params, Skew: beta > 0}
	term := make([]float64, length)
	for _, p := range peaks {
		params[model.AmplitudeIndex(0)] = p.Amplitude
		params[model.CentroidIndex(0)] = p.Centroid
		params[model.WidthIndex(0)] = p.Width
		for i := range term {
			term[i] = shape.Peak(0, float64(i))
		}
		vecmath.AddBlockInPlace(out, term)
	}
	return out
}

// PoissonNoise replaces every value with a Poisson draw of that mean using
// a fixed seed. Non-positive means give zero counts.
func PoissonNoise(seed int64, data []float64) []float64 {
	src := rand.NewSource(uint64(seed))
	out := make([]float64, len(data))
	for i, mean := range data {
		if mean > 0 {
			out[i] = distuv.Poisson{Lambda: mean, Src: src}.Rand()
		}
	}
	return out
}

// DC generates a constant-valued spectrum.
func DC(value float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = value
	}
	return out
}
