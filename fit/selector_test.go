package fit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorFlow(t *testing.T) {
	f := newFitter(t, histogram(t, twoPeakSpectrum()))
	sel := NewSelector(f, Request{Weight: DataVariance})
	ctx := context.Background()

	assert.Equal(t, StateIdle, sel.State())
	assert.ErrorIs(t, sel.AddLimit(100), ErrInvalidState)

	sel.Begin()
	assert.Equal(t, StateSelectingLimits, sel.State())
	require.NoError(t, sel.AddLimit(400))
	_, _, ok := sel.Limits()
	assert.False(t, ok)
	require.NoError(t, sel.AddLimit(100))

	start, end, ok := sel.Limits()
	require.True(t, ok)
	assert.Equal(t, 100, start)
	assert.Equal(t, 400, end)
	assert.Equal(t, StateSelectingPeaks, sel.State())
	assert.ErrorIs(t, sel.AddLimit(200), ErrInvalidState)

	_, err := sel.AddPeak(ctx, 450)
	assert.ErrorIs(t, err, ErrInvalidRange)

	ch, err := sel.AddPeak(ctx, 150)
	require.NoError(t, err)
	assert.Nil(t, ch)
	ch, err = sel.AddPeak(ctx, 300)
	require.NoError(t, err)
	assert.Nil(t, ch)
	assert.Equal(t, []float64{150, 300}, sel.Peaks())

	ch, err = sel.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateFitting, sel.State())
	for n := range ch {
		sel.Observe(n)
	}
	assert.Equal(t, StateFitted, sel.State())
	require.NotNil(t, f.Session())
	assert.Equal(t, 2, f.Session().NumPeaks())

	sel.Reset()
	assert.Equal(t, StateIdle, sel.State())
	assert.Empty(t, sel.Peaks())
}

func TestSelectorAutoStartsAtMaxPeaks(t *testing.T) {
	f := newFitter(t, histogram(t, twoPeakSpectrum()), WithMaxPeaks(2))
	sel := NewSelector(f, Request{})
	ctx := context.Background()

	sel.Begin()
	require.NoError(t, sel.AddLimit(100))
	require.NoError(t, sel.AddLimit(400))

	ch, err := sel.AddPeak(ctx, 150)
	require.NoError(t, err)
	require.Nil(t, ch)
	ch, err = sel.AddPeak(ctx, 300)
	require.NoError(t, err)
	require.NotNil(t, ch)

	ns := drain(ch)
	assert.Equal(t, StateFitted, ns[len(ns)-1].State)
}

func TestSelectorEmptyRange(t *testing.T) {
	f := newFitter(t, histogram(t, twoPeakSpectrum()))
	sel := NewSelector(f, Request{})
	sel.Begin()
	require.NoError(t, sel.AddLimit(120))
	assert.ErrorIs(t, sel.AddLimit(120), ErrInvalidRange)
	assert.Equal(t, StateSelectingLimits, sel.State())
	require.NoError(t, sel.AddLimit(180))
	assert.Equal(t, StateSelectingPeaks, sel.State())
}

func TestSelectorCommitPrecondition(t *testing.T) {
	f := newFitter(t, histogram(t, twoPeakSpectrum()))
	sel := NewSelector(f, Request{})
	_, err := sel.Commit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)

	sel.Begin()
	require.NoError(t, sel.AddLimit(100))
	require.NoError(t, sel.AddLimit(104))
	_, err = sel.AddPeak(context.Background(), 102)
	require.NoError(t, err)
	_, err = sel.Commit(context.Background())
	assert.ErrorIs(t, err, ErrInsufficientDOF)
	assert.Equal(t, StateSelectingPeaks, sel.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "refining-skew", StateRefiningSkew.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateFailed.Done())
	assert.False(t, StateRefining.Done())
}
