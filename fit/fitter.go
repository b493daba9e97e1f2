package fit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-peakfit/guess"
	"github.com/cwbudde/algo-peakfit/internal/numeric"
	"github.com/cwbudde/algo-peakfit/model"
	"github.com/cwbudde/algo-peakfit/search"
	"github.com/cwbudde/algo-peakfit/spectrum"
)

// Notification reports a state transition of a running fit. Session is a
// copy taken at the transition; Err is set for StateFailed.
type Notification struct {
	State   State
	Session *Snapshot
	Err     error
}

// Outcome is the final result of a fit.
type Outcome struct {
	State   State
	Session *Session
	Err     error
}

// Fitter runs fits against one spectrum, one at a time.
type Fitter struct {
	acc spectrum.Accessor
	cfg Config

	mu      sync.Mutex
	running bool
	last    *Session
}

// NewFitter creates a fitter reading from acc.
func NewFitter(acc spectrum.Accessor, opts ...Option) (*Fitter, error) {
	if acc == nil {
		return nil, ErrNilAccessor
	}
	return &Fitter{acc: acc, cfg: ApplyOptions(opts...)}, nil
}

// Config returns the configuration of the fitter.
func (f *Fitter) Config() Config { return f.cfg }

// Session returns the most recent completed session, or nil.
func (f *Fitter) Session() *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Clear discards the most recent session.
func (f *Fitter) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return ErrFitInProgress
	}
	f.last = nil
	return nil
}

// Start validates req and runs the fit on a new goroutine. The returned
// channel receives every state transition and is closed after the final
// StateFitted or StateFailed notification. Precondition failures are
// returned directly and no goroutine is started.
func (f *Fitter) Start(ctx context.Context, req Request) (<-chan Notification, error) {
	_, ch, err := f.start(ctx, req)
	return ch, err
}

func (f *Fitter) start(ctx context.Context, req Request) (*Session, <-chan Notification, error) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil, nil, ErrFitInProgress
	}
	s, err := f.prepare(req)
	if err != nil {
		f.mu.Unlock()
		return nil, nil, err
	}
	f.running = true
	f.mu.Unlock()

	// Buffered for every transition a fit can emit.
	ch := make(chan Notification, 4)
	go func() {
		defer close(ch)
		out := f.run(ctx, s, ch)

		f.mu.Lock()
		f.running = false
		if out.State == StateFitted {
			f.last = s
		}
		f.mu.Unlock()
		ch <- Notification{State: out.State, Session: s.Snapshot(), Err: out.Err}
	}()
	return s, ch, nil
}

// Run performs a fit synchronously. For a failed fit the outcome is
// returned together with its error.
func (f *Fitter) Run(ctx context.Context, req Request) (*Outcome, error) {
	s, ch, err := f.start(ctx, req)
	if err != nil {
		return nil, err
	}
	var last Notification
	for n := range ch {
		last = n
	}

	out := &Outcome{State: last.State, Session: s, Err: last.Err}
	return out, out.Err
}

// prepare validates req and builds a seeded session.
func (f *Fitter) prepare(req Request) (*Session, error) {
	if req.End <= req.Start || req.Start < 0 {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, req.Start, req.End)
	}
	if l, ok := f.acc.(interface{ Len() int }); ok && req.End >= l.Len() {
		return nil, fmt.Errorf("%w: end %d beyond %d channels", ErrInvalidRange, req.End, l.Len())
	}

	peaks := req.Peaks
	if len(peaks) == 0 && req.AutoPeaks {
		found, err := search.Find(f.acc, req.Start, req.End, search.WithMaxPeaks(f.cfg.MaxPeaks))
		if err != nil {
			return nil, fmt.Errorf("fit: peak search: %w", err)
		}
		peaks = found
	}
	if len(peaks) > f.cfg.MaxPeaks {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyPeaks, len(peaks), f.cfg.MaxPeaks)
	}
	if len(peaks) == 0 && req.Type == model.Skewed {
		return nil, fmt.Errorf("%w: skewed fit needs at least one peak", ErrNoPeaks)
	}
	for _, p := range peaks {
		if p < float64(req.Start) || p > float64(req.End) {
			return nil, fmt.Errorf("%w: peak %g outside [%d, %d]", ErrInvalidRange, p, req.Start, req.End)
		}
	}

	dof := (req.End-req.Start)/f.acc.Contraction() - (3 + 3*len(peaks))
	if dof <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInsufficientDOF, dof)
	}

	s := newSession(f.acc, req, len(peaks))
	s.dof = dof
	if err := f.seed(s, req, peaks); err != nil {
		return nil, err
	}
	return s, nil
}

// seed fills in the starting parameters.
func (f *Fitter) seed(s *Session, req Request, peaks []float64) error {
	p := s.params
	y0 := f.acc.BinValue(req.Start)
	y1 := f.acc.BinValue(req.End)
	p[model.IndexB] = (y1 - y0) / float64(req.End-req.Start)
	p[model.IndexA] = y0 - p[model.IndexB]*float64(req.Start)

	for idx, v := range req.Fixed {
		if idx < 0 || idx >= len(p) || s.fixed[idx] != Free {
			return fmt.Errorf("%w: index %d", ErrInvalidFix, idx)
		}
		if _, class, ok := model.PeakOf(idx); ok && class == model.ParamWidth && req.FixRelativeWidths {
			return fmt.Errorf("%w: width %d is linked", ErrInvalidFix, idx)
		}
		s.fixed[idx] = FixedAtValue
		p[idx] = v
	}

	for i, g := range peaks {
		pos := g
		if !guess.NearOthers(peaks, i, f.cfg.MinSeparation) {
			pos = numeric.Clamp(guess.Centroid(f.acc, g), float64(req.Start), float64(req.End))
		}
		if s.fixed[model.CentroidIndex(i)] == Free {
			p[model.CentroidIndex(i)] = pos
		}
		s.initCentroids[i] = p[model.CentroidIndex(i)]

		if s.fixed[model.AmplitudeIndex(i)] == Free {
			p[model.AmplitudeIndex(i)] = guess.Amplitude(f.acc, pos, s.EvalBackground)
		}
		s.ampSigns[i] = sign(p[model.AmplitudeIndex(i)])

		if s.fixed[model.WidthIndex(i)] == Free {
			w := 0.0
			if i < len(req.Widths) {
				w = req.Widths[i]
			}
			if w <= 0 {
				w = guess.Width(f.acc, pos, f.cfg.WidthModel.Sigma(pos))
			}
			p[model.WidthIndex(i)] = w
		}
	}

	if s.ratios != nil {
		c0 := p[model.CentroidIndex(0)]
		sigma0 := f.cfg.WidthModel.Sigma(c0)
		s.ratios[0] = 1
		for i := 1; i < len(s.ratios); i++ {
			s.ratios[i] = f.cfg.WidthModel.Sigma(p[model.CentroidIndex(i)]) / sigma0
			s.fixed[model.WidthIndex(i)] = FixedAsRelativeWidth
		}
		s.syncLinkedWidths()
	}
	return nil
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// run executes the passes of a prepared session and reports transitions
// other than the final one on ch.
func (f *Fitter) run(ctx context.Context, s *Session, ch chan<- Notification) *Outcome {
	logger := f.cfg.Logger.WithFields(log.Fields{
		"session": s.ID,
		"peaks":   s.NumPeaks(),
		"range":   fmt.Sprintf("[%d, %d]", s.start, s.end),
	})
	notify := func(st State) {
		logger.WithField("state", st).Debug("fit state")
		ch <- Notification{State: st, Session: s.Snapshot()}
	}

	fail := func(err error) *Outcome {
		s.converged = false
		logger.WithError(err).Warn("fit failed")
		f.cfg.Metrics.observeFit(outcomeLabel(err), s.iterations)
		return &Outcome{State: StateFailed, Session: s, Err: err}
	}

	notify(StateFitting)
	err := s.optimize(ctx, &f.cfg, f.cfg.FirstPassIterations)
	if errors.Is(err, ErrIterationBudget) {
		notify(StateRefining)
		err = s.optimize(ctx, &f.cfg, f.cfg.RetryIterations)
	}
	if err != nil {
		return fail(err)
	}

	if s.typ == model.Skewed {
		notify(StateRefiningSkew)
		s.params[model.IndexR] = f.cfg.SkewRatio
		s.params[model.IndexBeta] = s.params[model.WidthIndex(0)] / 2
		s.fixed[model.IndexR] = Free
		s.fixed[model.IndexBeta] = Free
		if err := s.optimize(ctx, &f.cfg, f.cfg.SkewIterations); err != nil {
			return fail(fmt.Errorf("skew pass: %w", err))
		}
	}

	for i := 0; i < s.NumPeaks(); i++ {
		wi := model.WidthIndex(i)
		s.params[wi] = math.Abs(s.params[wi])
	}
	s.converged = true
	s.computeErrors()

	logger.WithFields(log.Fields{
		"chi2ndf":    s.ReducedChiSquare(),
		"iterations": s.iterations,
		"errors":     s.errorsAvailable,
	}).Info("fit converged")
	f.cfg.Metrics.observeFit("converged", s.iterations)
	return &Outcome{State: StateFitted, Session: s}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrSingularSystem):
		return "singular"
	case errors.Is(err, ErrDiverged):
		return "diverged"
	case errors.Is(err, ErrIterationBudget):
		return "budget"
	}
	return "aborted"
}
