package fit

import (
	"context"
	"sync/atomic"
	"testing"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-peakfit/internal/testutil"
	"github.com/cwbudde/algo-peakfit/spectrum"
)

func histogram(t *testing.T, counts []float64, opts ...spectrum.HistogramOption) *spectrum.Histogram {
	t.Helper()
	h, err := spectrum.NewHistogram(counts, opts...)
	require.NoError(t, err)
	return h
}

func quietLogger() *log.Entry {
	logger, _ := logtest.NewNullLogger()
	return log.NewEntry(logger)
}

func newFitter(t *testing.T, acc spectrum.Accessor, opts ...Option) *Fitter {
	t.Helper()
	f, err := NewFitter(acc, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return f
}

// twoPeakSpectrum is channels 0-500 with peaks at 150 (1000, σ 5) and
// 300 (600, σ 6) on a flat background of 10.
func twoPeakSpectrum() []float64 {
	return testutil.GaussianSpectrum(501, testutil.Background{A: 10},
		testutil.Peak{Amplitude: 1000, Centroid: 150, Width: 5},
		testutil.Peak{Amplitude: 600, Centroid: 300, Width: 6},
	)
}

func singlePeakSpectrum() []float64 {
	return testutil.GaussianSpectrum(400, testutil.Background{A: 10},
		testutil.Peak{Amplitude: 1000, Centroid: 200, Width: 5})
}

func runFit(t *testing.T, f *Fitter, req Request) *Session {
	t.Helper()
	out, err := f.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StateFitted, out.State)
	require.True(t, out.Session.Converged())
	return out.Session
}

func drain(ch <-chan Notification) []Notification {
	var out []Notification
	for n := range ch {
		out = append(out, n)
	}
	return out
}

func states(ns []Notification) []State {
	out := make([]State, len(ns))
	for i, n := range ns {
		out[i] = n.State
	}
	return out
}

// gatedAccessor blocks fit-weight reads until release is closed. Seeding
// only reads bin values, so a fit started on it stalls in its first
// iteration.
type gatedAccessor struct {
	spectrum.Accessor
	armed   atomic.Bool
	release chan struct{}
}

func (g *gatedAccessor) BinFitWeight(ch int) float64 {
	if g.armed.Load() {
		<-g.release
	}
	return g.Accessor.BinFitWeight(ch)
}
