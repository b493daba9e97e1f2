package fit

import (
	"math"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-peakfit/internal/numeric"
	"github.com/cwbudde/algo-peakfit/model"
	"github.com/cwbudde/algo-peakfit/spectrum"
)

// WeightMode selects the variance each channel's residual is divided by.
type WeightMode int

const (
	// DataVariance uses the statistical variance of the observed bin.
	DataVariance WeightMode = iota
	// ModelVariance uses the current model value.
	ModelVariance
	// Unweighted uses unit weights.
	Unweighted
)

// String returns the lower-case name of the weight mode.
func (m WeightMode) String() string {
	switch m {
	case DataVariance:
		return "data"
	case ModelVariance:
		return "model"
	case Unweighted:
		return "none"
	default:
		return "unknown"
	}
}

// FixState tells whether a parameter takes part in the fit.
type FixState int

const (
	// Free parameters are adjusted by the fit.
	Free FixState = iota
	// FixedAtValue holds a parameter at its seeded value.
	FixedAtValue
	// FixedAsRelativeWidth marks a peak width that follows the width of
	// peak 0 through a constant ratio.
	FixedAsRelativeWidth
)

// Request describes one fit.
type Request struct {
	// Start and End are the inclusive channel bounds of the fit.
	Start, End int
	// Peaks holds approximate peak positions in channels.
	Peaks []float64
	// Widths optionally holds starting widths (sigma, channels) per peak.
	// Missing or non-positive entries are estimated from the data.
	Widths []float64
	Type   model.FitType
	Weight WeightMode
	// FixRelativeWidths links all peak widths to the width of peak 0.
	FixRelativeWidths bool
	// Fixed pins parameters, by vector index, at the given values.
	Fixed map[int]float64
	// AutoPeaks searches the fit range for peaks when Peaks is empty.
	AutoPeaks bool
}

// Session is the state of one fit. It is mutated in place by the optimizer
// and read-only once the fit has finished.
type Session struct {
	ID uuid.UUID

	acc    spectrum.Accessor
	start  int
	end    int
	typ    model.FitType
	weight WeightMode

	params []float64
	errs   []float64
	fixed  []FixState
	ratios []float64

	initCentroids []float64
	ampSigns      []float64

	dof             int
	iterations      int
	converged       bool
	errorsAvailable bool

	shape model.Shape
}

func newSession(acc spectrum.Accessor, req Request, numPeaks int) *Session {
	n := model.NumParams(numPeaks)
	s := &Session{
		ID:            uuid.New(),
		acc:           acc,
		start:         req.Start,
		end:           req.End,
		typ:           req.Type,
		weight:        req.Weight,
		params:        make([]float64, n),
		errs:          make([]float64, n),
		fixed:         make([]FixState, n),
		initCentroids: make([]float64, numPeaks),
		ampSigns:      make([]float64, numPeaks),
	}
	s.fixed[model.IndexR] = FixedAtValue
	s.fixed[model.IndexBeta] = FixedAtValue
	s.fixed[model.IndexReserved] = FixedAtValue
	if req.FixRelativeWidths && numPeaks > 0 {
		s.ratios = make([]float64, numPeaks)
	}
	s.shape = model.Shape{
		Params:      s.params,
		Ratios:      s.ratios,
		Skew:        req.Type == model.Skewed,
		Contraction: acc.Contraction(),
	}
	return s
}

// Start returns the first channel of the fit range.
func (s *Session) Start() int { return s.start }

// End returns the last channel of the fit range.
func (s *Session) End() int { return s.end }

// Type returns the fit type.
func (s *Session) Type() model.FitType { return s.typ }

// WeightMode returns the weighting used by the fit.
func (s *Session) WeightMode() WeightMode { return s.weight }

// NumPeaks returns the number of fitted peaks.
func (s *Session) NumPeaks() int { return model.NumPeaksFor(len(s.params)) }

// LinkedWidths reports whether peak widths follow the width of peak 0.
func (s *Session) LinkedWidths() bool { return s.ratios != nil }

// Params returns a copy of the parameter vector.
func (s *Session) Params() []float64 { return append([]float64(nil), s.params...) }

// Errors returns a copy of the 1σ parameter uncertainties.
func (s *Session) Errors() []float64 { return append([]float64(nil), s.errs...) }

// Ratios returns a copy of the linked width ratios, or nil.
func (s *Session) Ratios() []float64 {
	if s.ratios == nil {
		return nil
	}
	return append([]float64(nil), s.ratios...)
}

// Fixed returns the fix state of parameter i.
func (s *Session) Fixed(i int) FixState { return s.fixed[i] }

// DOF returns the degrees of freedom of the fit.
func (s *Session) DOF() int { return s.dof }

// Iterations returns the number of optimizer iterations over all passes.
func (s *Session) Iterations() int { return s.iterations }

// Converged reports whether the fit converged.
func (s *Session) Converged() bool { return s.converged }

// ErrorsAvailable reports whether parameter uncertainties were computed.
func (s *Session) ErrorsAvailable() bool { return s.errorsAvailable }

// Eval returns the fitted function at channel x.
func (s *Session) Eval(x float64) float64 { return s.shape.Eval(x) }

// EvalBackground returns the fitted background at channel x.
func (s *Session) EvalBackground(x float64) float64 { return s.shape.Background(x) }

// EvalPeak returns the contribution of peak i at channel x, or 0 for an
// invalid index.
func (s *Session) EvalPeak(i int, x float64) float64 {
	if i < 0 || i >= s.NumPeaks() {
		return 0
	}
	return s.shape.Peak(i, x)
}

// EvalPeakWithBackground returns background plus peak i at channel x.
func (s *Session) EvalPeakWithBackground(i int, x float64) float64 {
	return s.shape.PeakWithBackground(i, x)
}

// skewActive reports whether R and β are free in the current pass.
func (s *Session) skewActive() bool {
	return s.fixed[model.IndexR] == Free
}

// active returns the indices of the free parameters in vector order.
func (s *Session) active() []int {
	out := make([]int, 0, len(s.params))
	for i, f := range s.fixed {
		if f == Free {
			out = append(out, i)
		}
	}
	return out
}

// syncLinkedWidths stores the effective width of every linked peak in its
// own slot.
func (s *Session) syncLinkedWidths() {
	if s.ratios == nil {
		return
	}
	w0 := s.params[model.WidthIndex(0)]
	for i := 1; i < len(s.ratios); i++ {
		s.params[model.WidthIndex(i)] = w0 * s.ratios[i]
	}
}

// valid reports whether the parameters are physically plausible.
func (s *Session) valid() bool {
	for _, p := range s.params {
		if !numeric.IsFinite(p) {
			return false
		}
	}

	span := float64(s.end - s.start)
	for i := 0; i < s.NumPeaks(); i++ {
		c := s.params[model.CentroidIndex(i)]
		if c < float64(s.start) || c > float64(s.end) {
			return false
		}
		if math.Abs(c-s.initCentroids[i]) > span/2 {
			return false
		}
		w := s.shape.Width(i)
		if w <= 0 || w > span/2 {
			return false
		}
		if s.params[model.AmplitudeIndex(i)]*s.ampSigns[i] < 0 {
			return false
		}
	}

	if s.skewActive() {
		r := s.params[model.IndexR]
		if r < -1 || r > 1 {
			return false
		}
		if s.params[model.IndexBeta] < 0 {
			return false
		}
	}
	return true
}

// Snapshot is an immutable copy of a session, carried by notifications.
type Snapshot struct {
	ID              uuid.UUID
	Start, End      int
	Type            model.FitType
	Params          []float64
	Errors          []float64
	Iterations      int
	Converged       bool
	ErrorsAvailable bool
	ChiSquare       float64
}

// Snapshot copies the current state of the session.
func (s *Session) Snapshot() *Snapshot {
	return &Snapshot{
		ID:              s.ID,
		Start:           s.start,
		End:             s.end,
		Type:            s.typ,
		Params:          s.Params(),
		Errors:          s.Errors(),
		Iterations:      s.iterations,
		Converged:       s.converged,
		ErrorsAvailable: s.errorsAvailable,
		ChiSquare:       s.ChiSquare(),
	}
}
