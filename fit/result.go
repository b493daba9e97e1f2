package fit

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/cwbudde/algo-peakfit/internal/numeric"
	"github.com/cwbudde/algo-peakfit/model"
	"github.com/cwbudde/algo-peakfit/spectrum"
)

const sqrt2Pi = 2.5066282746310005024157652848110

// PeakResult holds the derived quantities of one fitted peak. Areas are in
// raw channel counts; positions and widths are in channels.
type PeakResult struct {
	Area, AreaError           float64
	Centroid, CentroidError   float64
	FWHM, FWHMError           float64
	Amplitude, AmplitudeError float64
	Width, WidthError         float64
}

// ChiSquare returns the Pearson statistic Σ (f - y)²/|f| over the channels
// of the fit range where the model is non-zero.
func (s *Session) ChiSquare() float64 {
	var acc numeric.Accumulator
	for _, ch := range spectrum.Channels(s.acc, s.start, s.end) {
		f := s.shape.Eval(float64(ch))
		if f == 0 {
			continue
		}
		d := f - s.acc.BinValue(ch)
		acc.Add(d * d / math.Abs(f))
	}
	return acc.Sum()
}

// ReducedChiSquare returns ChiSquare divided by the degrees of freedom.
func (s *Session) ReducedChiSquare() float64 {
	if s.dof <= 0 {
		return math.NaN()
	}
	return s.ChiSquare() / float64(s.dof)
}

// computeErrors fills the parameter uncertainties from the undamped
// covariance at the current parameters. Peak amplitudes, centroids and
// widths additionally get their Poisson Cramér-Rao floor added in
// quadrature.
func (s *Session) computeErrors() {
	for i := range s.errs {
		s.errs[i] = 0
	}
	s.errorsAvailable = false

	ne, err := s.buildNormalEquations()
	if err != nil {
		return
	}
	step, err := ne.Solve(0)
	if err != nil {
		return
	}
	for a, p := range ne.Active {
		s.errs[p] = step.Sigma[a]
	}
	if s.ratios != nil {
		e0 := s.errs[model.WidthIndex(0)]
		for i := 1; i < len(s.ratios); i++ {
			s.errs[model.WidthIndex(i)] = e0 * s.ratios[i]
		}
	}

	for i := 0; i < s.NumPeaks(); i++ {
		amp := s.params[model.AmplitudeIndex(i)]
		w := s.shape.Width(i)
		ampVar := math.Abs(3 * amp / (2 * sqrt2Pi * w))
		posVar := math.Abs(w / (sqrt2Pi * amp))
		widthVar := math.Abs(w / (2 * sqrt2Pi * amp))
		addQuadrature(&s.errs[model.AmplitudeIndex(i)], ampVar)
		addQuadrature(&s.errs[model.CentroidIndex(i)], posVar)
		addQuadrature(&s.errs[model.WidthIndex(i)], widthVar)
	}
	s.errorsAvailable = true
}

func addQuadrature(e *float64, variance float64) {
	if !numeric.IsFinite(variance) {
		return
	}
	*e = math.Sqrt(*e**e + variance)
}

// Peak returns the derived results of peak i.
func (s *Session) Peak(i int) (PeakResult, error) {
	if i < 0 || i >= s.NumPeaks() {
		return PeakResult{}, fmt.Errorf("%w: %d of %d", ErrPeakIndex, i, s.NumPeaks())
	}
	if !s.converged {
		return PeakResult{}, ErrNotFitted
	}

	p, e := s.params, s.errs
	sh := &s.shape
	amp, dAmp := p[model.AmplitudeIndex(i)], e[model.AmplitudeIndex(i)]
	w, dW := sh.Width(i), e[model.WidthIndex(i)]
	r, dR := p[model.IndexR], e[model.IndexR]
	beta, dBeta := p[model.IndexBeta], e[model.IndexBeta]

	res := PeakResult{
		Centroid:       p[model.CentroidIndex(i)],
		CentroidError:  e[model.CentroidIndex(i)],
		FWHM:           sh.FWHM(i),
		FWHMError:      model.FWHMFactor * dW,
		Amplitude:      amp,
		AmplitudeError: dAmp,
		Width:          w,
		WidthError:     dW,
	}

	sym := sh.SymmetricArea(i)
	symRel2 := sq(dAmp/amp) + sq(dW/w)
	if r != 1 {
		symRel2 += sq(dR / (1 - r))
	}
	symErr2 := sq(sym) * symRel2

	skew := sh.SkewedArea(i)
	var skewErr2 float64
	if skew != 0 {
		rel2 := sq(dAmp/amp) + sq(dR/r) +
			sq(dBeta*(1/beta+w*w/(beta*beta*beta))) +
			sq(dW*w/(beta*beta))
		skewErr2 = sq(skew) * rel2
	}

	res.Area = sym + skew
	res.AreaError = math.Sqrt(symErr2 + skewErr2)
	return res, nil
}

func sq(x float64) float64 { return x * x }

// Background returns the fitted background coefficients A, B, C and their
// uncertainties.
func (s *Session) Background() (coef, errs [3]float64) {
	for k := 0; k < 3; k++ {
		coef[k] = s.params[k]
		errs[k] = s.errs[k]
	}
	return coef, errs
}

// Skew returns R and β with their uncertainties.
func (s *Session) Skew() (r, dr, beta, dbeta float64) {
	return s.params[model.IndexR], s.errs[model.IndexR], s.params[model.IndexBeta], s.errs[model.IndexBeta]
}

// Summary writes a human readable table of the fit results.
func (s *Session) Summary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "range\t[%d, %d]\ttype %s\tweights %s\n", s.start, s.end, s.typ, s.weight)
	fmt.Fprintf(tw, "chi2/ndf\t%.4g\tndf %d\titerations %d\n", s.ReducedChiSquare(), s.dof, s.iterations)

	coef, errs := s.Background()
	fmt.Fprintf(tw, "background\tA = %.6g ± %.3g\tB = %.6g ± %.3g\tC = %.6g ± %.3g\n",
		coef[0], errs[0], coef[1], errs[1], coef[2], errs[2])
	if s.typ == model.Skewed {
		r, dr, beta, dbeta := s.Skew()
		fmt.Fprintf(tw, "skew\tR = %.4g ± %.3g\tβ = %.4g ± %.3g\t\n", r, dr, beta, dbeta)
	}
	if !s.errorsAvailable {
		fmt.Fprintln(tw, "errors\tunavailable\t\t")
	}

	fmt.Fprintln(tw, "peak\tarea\tcentroid\tfwhm")
	for i := 0; i < s.NumPeaks(); i++ {
		res, err := s.Peak(i)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%d\t%.6g ± %.3g\t%.4f ± %.3g\t%.4f ± %.3g\n",
			i, res.Area, res.AreaError, res.Centroid, res.CentroidError, res.FWHM, res.FWHMError)
	}
	return tw.Flush()
}

// NumericArea integrates peak i of the fitted model over [lo, hi] on n
// points. Comparing it with Peak(i).Area checks the closed form.
func (s *Session) NumericArea(i int, lo, hi float64, n int) (float64, error) {
	if i < 0 || i >= s.NumPeaks() {
		return 0, fmt.Errorf("%w: %d of %d", ErrPeakIndex, i, s.NumPeaks())
	}
	return s.shape.NumericArea(i, lo, hi, n), nil
}
