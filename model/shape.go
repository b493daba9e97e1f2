package model

import (
	"math"

	"gonum.org/v1/gonum/integrate"
)

const (
	sqrt2   = math.Sqrt2
	sqrtPi  = 1.7724538509055160272981674833411
	sqrt2Pi = 2.5066282746310005024157652848110

	// FWHMFactor converts a Gaussian sigma into its full width at half
	// maximum.
	FWHMFactor = 2.3548200450309493
)

// Shape evaluates the fit function for one parameter vector.
//
// Params is read on every call, so callers may update it in place between
// evaluations. When Ratios is non-nil the peak widths are linked: the width
// of peak i is Params[WidthIndex(0)]·Ratios[i] and the per-peak width slots
// are ignored.
type Shape struct {
	Params      []float64
	Ratios      []float64
	Skew        bool
	Contraction int
}

// NumPeaks returns the number of peaks in the parameter vector.
func (s *Shape) NumPeaks() int { return NumPeaksFor(len(s.Params)) }

// Width returns the effective Gaussian sigma of a peak.
func (s *Shape) Width(peak int) float64 {
	if s.Ratios != nil {
		return s.Params[WidthIndex(0)] * s.Ratios[peak]
	}
	return s.Params[WidthIndex(peak)]
}

func (s *Shape) contraction() float64 {
	if s.Contraction < 1 {
		return 1
	}
	return float64(s.Contraction)
}

func (s *Shape) skewActive() bool {
	return s.Skew && s.Params[IndexBeta] > 0
}

// Background returns A + B·x + C·x².
func (s *Shape) Background(x float64) float64 {
	p := s.Params
	return p[IndexA] + x*p[IndexB] + x*x*p[IndexC]
}

// GaussTerm returns exp(-½·((x-centroid)/width)²) for a peak.
func (s *Shape) GaussTerm(peak int, x float64) float64 {
	w := s.Width(peak)
	u := x - s.Params[CentroidIndex(peak)]
	return math.Exp(-0.5 * u * u / (w * w))
}

// SkewTerm returns exp(u/β)·erfc(u/(√2σ) + σ/(√2β)) for a peak. It is zero
// when β is not positive.
func (s *Shape) SkewTerm(peak int, x float64) float64 {
	beta := s.Params[IndexBeta]
	if beta <= 0 {
		return 0
	}
	return skewTerm(x-s.Params[CentroidIndex(peak)], s.Width(peak), beta)
}

// skewTerm evaluates the tail in log space so that exp(u/β) cannot overflow
// where erfc has already underflowed.
func skewTerm(u, w, beta float64) float64 {
	ec := math.Erfc(u/(sqrt2*w) + w/(sqrt2*beta))
	if ec <= 0 {
		return 0
	}
	return math.Exp(u/beta + math.Log(ec))
}

// tailKernel returns exp(u/β - a²) = exp(-u²/(2σ²) - σ²/(2β²)), the factor
// produced by differentiating erfc in the skew term.
func tailKernel(u, w, beta float64) float64 {
	return math.Exp(-0.5*u*u/(w*w) - 0.5*w*w/(beta*beta))
}

// Peak returns the contribution of one peak at x, without background.
func (s *Shape) Peak(peak int, x float64) float64 {
	p := s.Params
	amp := p[AmplitudeIndex(peak)]
	r := p[IndexR]
	v := amp * (1 - r) * s.GaussTerm(peak, x)
	if s.skewActive() {
		v += amp * r * s.SkewTerm(peak, x)
	}
	return v
}

// PeakWithBackground returns the background plus a single peak at x. It
// returns 0 for an out-of-range peak index.
func (s *Shape) PeakWithBackground(peak int, x float64) float64 {
	if peak < 0 || peak >= s.NumPeaks() {
		return 0
	}
	return s.Background(x) + s.Peak(peak, x)
}

// Eval returns the full fit function at x.
func (s *Shape) Eval(x float64) float64 {
	v := s.Background(x)
	n := s.NumPeaks()
	for i := 0; i < n; i++ {
		v += s.Peak(i, x)
	}
	return v
}

// Derivative returns the partial derivative of one peak's contribution at x
// with respect to a parameter class.
//
// ParamWidth differentiates with respect to the peak's own effective width;
// callers linking widths multiply by the peak's ratio. ParamR and ParamBeta
// return this peak's share of the global derivative, so the full derivative
// is the sum over peaks. ParamBackground is not handled here.
func (s *Shape) Derivative(peak int, x float64, par Param) float64 {
	p := s.Params
	amp := p[AmplitudeIndex(peak)]
	r := p[IndexR]
	w := s.Width(peak)
	u := x - p[CentroidIndex(peak)]
	g := math.Exp(-0.5 * u * u / (w * w))

	var d float64
	switch par {
	case ParamAmplitude:
		d = (1 - r) * g
	case ParamCentroid:
		d = amp * (1 - r) * g * u / (w * w)
	case ParamWidth:
		d = amp * (1 - r) * g * u * u / (w * w * w)
	case ParamR:
		d = -amp * g
	case ParamBeta:
	default:
		return 0
	}

	if !s.skewActive() {
		return d
	}

	beta := p[IndexBeta]
	switch par {
	case ParamAmplitude:
		d += r * skewTerm(u, w, beta)
	case ParamCentroid:
		d += amp * r * (2*tailKernel(u, w, beta)/(sqrt2Pi*w) - skewTerm(u, w, beta)/beta)
	case ParamWidth:
		d += -2 * amp * r / sqrtPi * tailKernel(u, w, beta) * (1/(sqrt2*beta) - u/(sqrt2*w*w))
	case ParamR:
		d += amp * skewTerm(u, w, beta)
	case ParamBeta:
		d += amp * r * (2*w*tailKernel(u, w, beta)/(sqrt2Pi*beta*beta) - u*skewTerm(u, w, beta)/(beta*beta))
	}
	return d
}

// BackgroundDerivative returns the derivative of the fit function with
// respect to background coefficient k (0, 1 or 2) at x.
func BackgroundDerivative(k int, x float64) float64 {
	switch k {
	case IndexA:
		return 1
	case IndexB:
		return x
	case IndexC:
		return x * x
	}
	return 0
}

// SymmetricArea returns the Gaussian part of a peak's area in raw channels:
// amp·(1-R)·σ·√(2π)/contraction.
func (s *Shape) SymmetricArea(peak int) float64 {
	p := s.Params
	return p[AmplitudeIndex(peak)] * (1 - p[IndexR]) * s.Width(peak) * sqrt2Pi / s.contraction()
}

// SkewedArea returns the tail part of a peak's area in raw channels:
// 2·amp·R·β·exp(-σ²/(2β²))/contraction. It is zero when the skew term is
// inactive.
func (s *Shape) SkewedArea(peak int) float64 {
	if !s.skewActive() {
		return 0
	}
	p := s.Params
	w := s.Width(peak)
	beta := p[IndexBeta]
	return 2 * p[AmplitudeIndex(peak)] * p[IndexR] * beta * math.Exp(-0.5*w*w/(beta*beta)) / s.contraction()
}

// Area returns the total area of a peak in raw channels.
func (s *Shape) Area(peak int) float64 {
	return s.SymmetricArea(peak) + s.SkewedArea(peak)
}

// FWHM returns the full width at half maximum of a peak's Gaussian part.
func (s *Shape) FWHM(peak int) float64 {
	return FWHMFactor * s.Width(peak)
}

// NumericArea integrates a peak over [lo, hi] with the trapezoidal rule on
// n equally spaced points and scales the result to raw channels. It is a
// cross check for the closed forms.
func (s *Shape) NumericArea(peak int, lo, hi float64, n int) float64 {
	if n < 2 || hi <= lo {
		return 0
	}
	xs := make([]float64, n)
	fs := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range xs {
		xs[i] = lo + float64(i)*step
		fs[i] = s.Peak(peak, xs[i])
	}
	return integrate.Trapezoidal(xs, fs) / s.contraction()
}

// WidthModel describes the expected detector resolution
// FWHM(ch) = sqrt(F² + G²·(ch/1000) + H²·(ch/1000)²).
type WidthModel struct {
	F, G, H float64
}

// DefaultWidthModel returns F=3, G=2, H=0.
func DefaultWidthModel() WidthModel {
	return WidthModel{F: 3, G: 2, H: 0}
}

// FWHM returns the modelled full width at half maximum at channel ch.
func (m WidthModel) FWHM(ch float64) float64 {
	k := ch / 1000
	return math.Sqrt(m.F*m.F + m.G*m.G*k + m.H*m.H*k*k)
}

// Sigma returns the modelled Gaussian sigma at channel ch.
func (m WidthModel) Sigma(ch float64) float64 {
	return m.FWHM(ch) / FWHMFactor
}
