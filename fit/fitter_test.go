package fit

import (
	"context"
	"math"
	"testing"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-peakfit/internal/testutil"
	"github.com/cwbudde/algo-peakfit/model"
	"github.com/cwbudde/algo-peakfit/spectrum"
)

func TestNewFitterNilAccessor(t *testing.T) {
	_, err := NewFitter(nil)
	assert.ErrorIs(t, err, ErrNilAccessor)
}

func TestRunTwoPeakScenario(t *testing.T) {
	f := newFitter(t, histogram(t, twoPeakSpectrum()))
	s := runFit(t, f, Request{Start: 100, End: 400, Peaks: []float64{150, 300}})

	want := []struct{ amp, centroid, width float64 }{
		{1000, 150, 5},
		{600, 300, 6},
	}
	for i, w := range want {
		res, err := s.Peak(i)
		require.NoError(t, err)
		assert.InDelta(t, w.centroid, res.Centroid, 0.1)
		analytic := w.amp * w.width * math.Sqrt(2*math.Pi)
		assert.InEpsilon(t, analytic, res.Area, 0.02)
	}
	assert.Equal(t, 300-9, s.DOF())
}

func TestRunRecoversSinglePeak(t *testing.T) {
	for _, mode := range []WeightMode{DataVariance, ModelVariance, Unweighted} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFitter(t, histogram(t, singlePeakSpectrum()))
			s := runFit(t, f, Request{Start: 150, End: 250, Peaks: []float64{198}, Weight: mode})

			p := s.Params()
			testutil.RequireRelative(t, "amplitude", p[model.AmplitudeIndex(0)], 1000, 1e-4)
			testutil.RequireRelative(t, "centroid", p[model.CentroidIndex(0)], 200, 1e-4)
			testutil.RequireRelative(t, "width", p[model.WidthIndex(0)], 5, 1e-4)
			assert.True(t, s.ErrorsAvailable())
			for _, i := range []int{model.AmplitudeIndex(0), model.CentroidIndex(0), model.WidthIndex(0)} {
				assert.Greater(t, s.Errors()[i], 0.0)
			}
		})
	}
}

func TestRunBackgroundOnly(t *testing.T) {
	counts := make([]float64, 201)
	for i := range counts {
		x := float64(i)
		counts[i] = 5 + 0.2*x + 0.001*x*x
	}
	for _, mode := range []WeightMode{DataVariance, ModelVariance, Unweighted} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFitter(t, histogram(t, counts))
			s := runFit(t, f, Request{Start: 20, End: 180, Weight: mode})

			// The damped first step lands close to the exact solution; the
			// step-size test needs a few small follow-up steps to confirm it.
			assert.Equal(t, 4, s.Iterations())
			assert.Equal(t, 0, s.NumPeaks())
			testutil.RequireCurve(t, s.Eval, counts, 20, 180, 1e-6)
		})
	}
}

func TestRunFixedParametersUnchanged(t *testing.T) {
	f := newFitter(t, histogram(t, singlePeakSpectrum()))
	fixed := map[int]float64{
		model.IndexC:           0,
		model.CentroidIndex(0): 200.5,
	}
	s := runFit(t, f, Request{Start: 150, End: 250, Peaks: []float64{198}, Fixed: fixed})

	p, e := s.Params(), s.Errors()
	assert.Equal(t, 0.0, p[model.IndexC])
	assert.Equal(t, 200.5, p[model.CentroidIndex(0)])
	assert.Equal(t, 0.0, e[model.IndexC])
	assert.Equal(t, 0.0, p[model.IndexR])
	assert.Equal(t, 0.0, p[model.IndexBeta])
	assert.Equal(t, 0.0, p[model.IndexReserved])
	assert.Equal(t, FixedAtValue, s.Fixed(model.IndexC))
}

func TestRunLinkedWidths(t *testing.T) {
	wm := model.WidthModel{F: 10, G: 5}
	w1, w2 := wm.Sigma(150), wm.Sigma(300)
	counts := testutil.GaussianSpectrum(501, testutil.Background{A: 10},
		testutil.Peak{Amplitude: 1000, Centroid: 150, Width: w1},
		testutil.Peak{Amplitude: 600, Centroid: 300, Width: w2},
	)

	f := newFitter(t, histogram(t, counts), WithWidthModel(wm))
	s := runFit(t, f, Request{Start: 100, End: 400, Peaks: []float64{150, 300}, FixRelativeWidths: true})

	require.True(t, s.LinkedWidths())
	ratios := s.Ratios()
	p := s.Params()
	assert.Equal(t, 1.0, ratios[0])
	assert.Equal(t, p[model.WidthIndex(0)]*ratios[1], p[model.WidthIndex(1)])
	testutil.RequireRelative(t, "width 0", p[model.WidthIndex(0)], w1, 1e-4)
	testutil.RequireRelative(t, "width 1", p[model.WidthIndex(1)], w2, 1e-4)
}

func TestRunSkewed(t *testing.T) {
	const r, beta = 0.2, 4.0
	counts := testutil.SkewedSpectrum(400, testutil.Background{A: 10}, r, beta,
		testutil.Peak{Amplitude: 1000, Centroid: 200, Width: 4})

	f := newFitter(t, histogram(t, counts))
	ch, err := f.Start(context.Background(), Request{Start: 140, End: 260, Peaks: []float64{200}, Type: model.Skewed})
	require.NoError(t, err)
	ns := drain(ch)
	require.Equal(t, []State{StateFitting, StateRefiningSkew, StateFitted}, states(ns))

	s := f.Session()
	require.NotNil(t, s)
	gotR, _, gotBeta, _ := s.Skew()
	assert.InDelta(t, r, gotR, 1e-3)
	testutil.RequireRelative(t, "beta", gotBeta, beta, 1e-3)

	truth := model.Shape{Params: []float64{10, 0, 0, r, beta, 0, 1000, 200, 4}, Skew: true}
	res, err := s.Peak(0)
	require.NoError(t, err)
	testutil.RequireRelative(t, "area", res.Area, truth.Area(0), 1e-4)
}

func TestRunContraction(t *testing.T) {
	counts := testutil.GaussianSpectrum(800, testutil.Background{A: 10},
		testutil.Peak{Amplitude: 1000, Centroid: 400, Width: 8})

	f := newFitter(t, histogram(t, counts, spectrum.WithContraction(2)))
	s := runFit(t, f, Request{Start: 300, End: 500, Peaks: []float64{400}})

	res, err := s.Peak(0)
	require.NoError(t, err)
	// Two-channel bins widen the peak slightly; the area is conserved.
	testutil.RequireRelative(t, "area", res.Area, 1000*8*math.Sqrt(2*math.Pi), 1e-3)
	assert.InDelta(t, 399.5, res.Centroid, 0.01)
	assert.Equal(t, 100-3-3, s.DOF())
}

func TestRunAutoPeaks(t *testing.T) {
	f := newFitter(t, histogram(t, twoPeakSpectrum()))
	s := runFit(t, f, Request{Start: 100, End: 400, AutoPeaks: true})

	require.Equal(t, 2, s.NumPeaks())
	p := s.Params()
	assert.InDelta(t, 150, p[model.CentroidIndex(0)], 1e-3)
	assert.InDelta(t, 300, p[model.CentroidIndex(1)], 1e-3)
}

func TestRunNoisySpectrum(t *testing.T) {
	counts := testutil.PoissonNoise(3, twoPeakSpectrum())
	for _, mode := range []WeightMode{DataVariance, ModelVariance, Unweighted} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFitter(t, histogram(t, counts))
			s := runFit(t, f, Request{Start: 100, End: 400, Peaks: []float64{150, 300}, Weight: mode})

			res, err := s.Peak(0)
			require.NoError(t, err)
			assert.InDelta(t, 150, res.Centroid, 0.5)
			assert.InEpsilon(t, 1000*5*math.Sqrt(2*math.Pi), res.Area, 0.1)
			assert.Greater(t, s.ReducedChiSquare(), 0.0)
		})
	}
}

func TestPreconditions(t *testing.T) {
	h := histogram(t, twoPeakSpectrum())
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{name: "empty range", req: Request{Start: 200, End: 200}, want: ErrInvalidRange},
		{name: "reversed range", req: Request{Start: 300, End: 200}, want: ErrInvalidRange},
		{name: "negative start", req: Request{Start: -5, End: 200}, want: ErrInvalidRange},
		{name: "beyond histogram", req: Request{Start: 100, End: 501}, want: ErrInvalidRange},
		{name: "peak outside", req: Request{Start: 100, End: 200, Peaks: []float64{250}}, want: ErrInvalidRange},
		{name: "too many peaks", req: Request{Start: 0, End: 500, Peaks: make([]float64, 11)}, want: ErrTooManyPeaks},
		{name: "no dof", req: Request{Start: 100, End: 110, Peaks: []float64{102, 105, 108}}, want: ErrInsufficientDOF},
		{name: "skew without peaks", req: Request{Start: 100, End: 400, Type: model.Skewed}, want: ErrNoPeaks},
		{name: "fix skew ratio", req: Request{Start: 100, End: 400, Fixed: map[int]float64{model.IndexR: 0.1}}, want: ErrInvalidFix},
		{name: "fix out of range", req: Request{Start: 100, End: 400, Fixed: map[int]float64{99: 1}}, want: ErrInvalidFix},
		{
			name: "fix linked width",
			req: Request{
				Start: 100, End: 400, Peaks: []float64{150, 300}, FixRelativeWidths: true,
				Fixed: map[int]float64{model.WidthIndex(1): 6},
			},
			want: ErrInvalidFix,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFitter(t, h)
			ch, err := f.Start(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, ch)

			out, err := f.Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, out)
		})
	}
}

func TestNotificationsRefining(t *testing.T) {
	f := newFitter(t, histogram(t, singlePeakSpectrum()), WithIterations(1, 100, 100))
	ch, err := f.Start(context.Background(), Request{Start: 150, End: 250, Peaks: []float64{198}})
	require.NoError(t, err)

	ns := drain(ch)
	require.Equal(t, []State{StateFitting, StateRefining, StateFitted}, states(ns))
	last := ns[len(ns)-1]
	assert.NoError(t, last.Err)
	require.NotNil(t, last.Session)
	assert.True(t, last.Session.Converged)
	assert.Equal(t, f.Session().ID, last.Session.ID)
	for _, n := range ns {
		assert.Equal(t, last.Session.ID, n.Session.ID)
	}
}

func TestIterationBudgetExhausted(t *testing.T) {
	f := newFitter(t, histogram(t, singlePeakSpectrum()), WithIterations(1, 1, 1))
	out, err := f.Run(context.Background(), Request{Start: 150, End: 250, Peaks: []float64{198}})
	assert.ErrorIs(t, err, ErrIterationBudget)
	require.NotNil(t, out)
	assert.Equal(t, StateFailed, out.State)
	assert.False(t, out.Session.Converged())
	assert.Nil(t, f.Session())
}

func TestSingularFailure(t *testing.T) {
	f := newFitter(t, histogram(t, testutil.DC(0, 300)))
	out, err := f.Run(context.Background(), Request{Start: 50, End: 250, Peaks: []float64{150}})
	assert.ErrorIs(t, err, ErrSingularSystem)
	assert.Equal(t, StateFailed, out.State)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFitter(t, histogram(t, singlePeakSpectrum()))
	out, err := f.Run(ctx, Request{Start: 150, End: 250, Peaks: []float64{198}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, out.State)
}

func TestFitInProgress(t *testing.T) {
	gate := &gatedAccessor{Accessor: histogram(t, singlePeakSpectrum()), release: make(chan struct{})}
	gate.armed.Store(true)
	f := newFitter(t, gate)
	req := Request{Start: 150, End: 250, Peaks: []float64{198}}

	ch, err := f.Start(context.Background(), req)
	require.NoError(t, err)

	_, err = f.Start(context.Background(), req)
	assert.ErrorIs(t, err, ErrFitInProgress)
	assert.ErrorIs(t, f.Clear(), ErrFitInProgress)

	close(gate.release)
	ns := drain(ch)
	require.NotEmpty(t, ns)
	assert.Equal(t, StateFitted, ns[len(ns)-1].State)

	runFit(t, f, req)
	require.NoError(t, f.Clear())
	assert.Nil(t, f.Session())
}

func TestLogging(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(log.DebugLevel)

	f, err := NewFitter(histogram(t, singlePeakSpectrum()), WithLogger(log.NewEntry(logger)))
	require.NoError(t, err)
	s := runFit(t, f, Request{Start: 150, End: 250, Peaks: []float64{198}})

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, log.InfoLevel, last.Level)
	assert.Equal(t, "fit converged", last.Message)
	assert.Equal(t, s.ID, last.Data["session"])

	var debug int
	for _, e := range hook.AllEntries() {
		if e.Level == log.DebugLevel {
			debug++
		}
	}
	assert.Equal(t, 1, debug)

	f2, err := NewFitter(histogram(t, testutil.DC(0, 300)), WithLogger(log.NewEntry(logger)))
	require.NoError(t, err)
	hook.Reset()
	_, err = f2.Run(context.Background(), Request{Start: 50, End: 250, Peaks: []float64{150}})
	require.Error(t, err)
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.MaxPeaks)
	assert.Equal(t, 0.001, cfg.ConvergenceFrac)
	assert.Equal(t, 50, cfg.FirstPassIterations)
	assert.Equal(t, 100, cfg.RetryIterations)
	assert.Equal(t, 100, cfg.SkewIterations)
	assert.Equal(t, 0.001, cfg.InitialDamping)
	assert.Equal(t, 2.0, cfg.DampingCap)
	assert.Equal(t, 10.0, cfg.MinSeparation)
	assert.Equal(t, model.DefaultWidthModel(), cfg.WidthModel)
	assert.NotNil(t, cfg.Logger)
	assert.Nil(t, cfg.Metrics)

	cfg = ApplyOptions(WithMaxPeaks(3), WithDamping(0.01, 4), WithConvergenceFrac(-1), nil)
	assert.Equal(t, 3, cfg.MaxPeaks)
	assert.Equal(t, 0.01, cfg.InitialDamping)
	assert.Equal(t, 4.0, cfg.DampingCap)
	assert.Equal(t, 0.001, cfg.ConvergenceFrac)
}
