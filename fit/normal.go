package fit

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-peakfit/internal/linsolve"
	"github.com/cwbudde/algo-peakfit/internal/numeric"
	"github.com/cwbudde/algo-peakfit/model"
	"github.com/cwbudde/algo-peakfit/spectrum"
)

// NormalEquations is the weighted least-squares system of one optimizer
// iteration, restricted to the active parameters.
//
// Curvature holds M[a][b] = Σ ∂f/∂θa · ∂f/∂θb / w and Gradient holds
// g[a] = Σ (y - f) · ∂f/∂θa / w over the channels of the fit range, in
// row-major order with one row per entry of Active.
type NormalEquations struct {
	Active    []int
	Curvature []float64
	Gradient  []float64

	// Channels that entered the sums, with their observed values and
	// inverse weights.
	xs, ys, invw []float64
}

// Step is a solved parameter increment.
type Step struct {
	// Delta is the increment per active parameter.
	Delta []float64
	// Sigma is sqrt((C+λ)^-1_ii / M_ii), the 1σ scale of each active
	// parameter under the damping the step was solved with.
	Sigma []float64
}

// residualWeight returns the variance a channel residual is divided by.
func (s *Session) residualWeight(ch int, f float64) float64 {
	switch s.weight {
	case ModelVariance:
		return math.Abs(f)
	case Unweighted:
		return 1
	default:
		return math.Abs(s.acc.BinFitWeight(ch))
	}
}

// column fills dst with the derivative of the fit function with respect to
// parameter index p at the positions xs.
func (s *Session) column(dst, xs []float64, p int) {
	sh := &s.shape
	switch p {
	case model.IndexA, model.IndexB, model.IndexC:
		for j, x := range xs {
			dst[j] = model.BackgroundDerivative(p, x)
		}
		return
	case model.IndexR, model.IndexBeta:
		class := model.ParamR
		if p == model.IndexBeta {
			class = model.ParamBeta
		}
		for j, x := range xs {
			var d float64
			for k := 0; k < s.NumPeaks(); k++ {
				d += sh.Derivative(k, x, class)
			}
			dst[j] = d
		}
		return
	}

	peak, class, _ := model.PeakOf(p)
	if class == model.ParamWidth && s.ratios != nil {
		// Shared width: chain rule through every linked peak.
		for j, x := range xs {
			var d float64
			for k, r := range s.ratios {
				d += sh.Derivative(k, x, model.ParamWidth) * r
			}
			dst[j] = d
		}
		return
	}
	for j, x := range xs {
		dst[j] = sh.Derivative(peak, x, class)
	}
}

// buildNormalEquations assembles the system at the current parameters.
func (s *Session) buildNormalEquations() (*NormalEquations, error) {
	var xs, ys, resid, invw []float64
	for _, ch := range spectrum.Channels(s.acc, s.start, s.end) {
		x := float64(ch)
		f := s.shape.Eval(x)
		w := s.residualWeight(ch, f)
		if w == 0 || math.IsNaN(w) {
			continue
		}
		y := s.acc.BinValue(ch)
		xs = append(xs, x)
		ys = append(ys, y)
		resid = append(resid, y-f)
		invw = append(invw, 1/w)
	}

	active := s.active()
	n := len(active)
	ne := &NormalEquations{
		Active:    active,
		Curvature: make([]float64, n*n),
		Gradient:  make([]float64, n),
		xs:        xs,
		ys:        ys,
		invw:      invw,
	}
	if n == 0 {
		return ne, nil
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("%w: no weighted channels in [%d, %d]", ErrSingularSystem, s.start, s.end)
	}

	cols := make([][]float64, n)
	weighted := make([][]float64, n)
	for a, p := range active {
		cols[a] = make([]float64, len(xs))
		weighted[a] = make([]float64, len(xs))
		s.column(cols[a], xs, p)
		vecmath.MulBlock(weighted[a], cols[a], invw)
	}

	for a := 0; a < n; a++ {
		ne.Gradient[a] = numeric.Dot(weighted[a], resid)
		for b := a; b < n; b++ {
			m := numeric.Dot(weighted[a], cols[b])
			ne.Curvature[a*n+b] = m
			ne.Curvature[b*n+a] = m
		}
		d := ne.Curvature[a*n+a]
		if d == 0 || !numeric.IsFinite(d) {
			return nil, fmt.Errorf("%w: zero curvature for parameter %d", ErrSingularSystem, active[a])
		}
	}
	return ne, nil
}

// Solve returns the increment for damping factor lambda.
//
// The curvature matrix is whitened to unit diagonal,
// C[a][b] = M[a][b]/sqrt(M[a][a]·M[b][b]), the diagonal is replaced by
// 1+lambda, and the increment is δ = D^-½ (C+λ)^-1 D^-½ g with D the
// diagonal of M.
func (ne *NormalEquations) Solve(lambda float64) (*Step, error) {
	n := len(ne.Active)
	if n == 0 {
		return &Step{}, nil
	}

	scale := make([]float64, n)
	for a := range scale {
		scale[a] = 1 / math.Sqrt(ne.Curvature[a*n+a])
	}

	c := make([]float64, n*n)
	rhs := make([]float64, n)
	for a := 0; a < n; a++ {
		rhs[a] = ne.Gradient[a] * scale[a]
		for b := 0; b < n; b++ {
			c[a*n+b] = ne.Curvature[a*n+b] * scale[a] * scale[b]
		}
		c[a*n+a] = 1 + lambda
	}

	sol, err := linsolve.Solve(c, rhs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSingularSystem, err)
	}

	step := &Step{
		Delta: make([]float64, n),
		Sigma: make([]float64, n),
	}
	for a := 0; a < n; a++ {
		step.Delta[a] = sol.X[a] * scale[a]
		step.Sigma[a] = math.Sqrt(math.Abs(sol.InverseDiag(a))) * scale[a]
	}
	return step, nil
}

// objective returns the weighted squared residual sum Σ (y - f)²/w over
// the channels and weights of ne, at the current parameters.
func (s *Session) objective(ne *NormalEquations) float64 {
	var acc numeric.Accumulator
	for j, x := range ne.xs {
		r := ne.ys[j] - s.shape.Eval(x)
		acc.Add(r * r * ne.invw[j])
	}
	return acc.Sum()
}

// apply adds a step to the active parameters and updates linked widths.
func (s *Session) apply(active []int, delta []float64) {
	for a, p := range active {
		s.params[p] += delta[a]
	}
	s.syncLinkedWidths()
}
