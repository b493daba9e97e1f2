// Package testutil provides helpers shared by the package tests.
package testutil

import (
	"math"
	"testing"
)

// RequireRelative fails t if got differs from want by more than rel·|want|.
// A zero want is compared with absolute tolerance rel.
func RequireRelative(t *testing.T, name string, got, want, rel float64) {
	t.Helper()
	diff := math.Abs(got - want)
	limit := rel * math.Abs(want)
	if want == 0 {
		limit = rel
	}
	if diff > limit || math.IsNaN(got) {
		t.Fatalf("%s: got %v, want %v (diff %v > %v)", name, got, want, diff, limit)
	}
}

// RequireWithin fails t if got is farther than abs from want.
func RequireWithin(t *testing.T, name string, got, want, abs float64) {
	t.Helper()
	if math.Abs(got-want) > abs || math.IsNaN(got) {
		t.Fatalf("%s: got %v, want %v ± %v", name, got, want, abs)
	}
}

// RequireFinite fails t if any value of data is NaN or infinite.
func RequireFinite(t *testing.T, name string, data []float64) {
	t.Helper()
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("%s[%d]: non-finite value %v", name, i, v)
		}
	}
}

// RequireCurve fails t unless eval reproduces counts on every channel of
// [lo, hi] within relative tolerance rel.
func RequireCurve(t *testing.T, eval func(x float64) float64, counts []float64, lo, hi int, rel float64) {
	t.Helper()
	if lo < 0 || hi >= len(counts) || lo > hi {
		t.Fatalf("curve range [%d, %d] outside %d channels", lo, hi, len(counts))
	}
	worst, at := MaxRelDiff(eval, counts, lo, hi)
	if worst > rel || math.IsNaN(worst) {
		t.Fatalf("channel %d: got %v, want %v (relative diff %v > %v)", at, eval(float64(at)), counts[at], worst, rel)
	}
}

// MaxRelDiff returns the largest relative deviation of eval from counts
// over [lo, hi] and the channel where it occurs. Channels with zero counts
// contribute their absolute deviation.
func MaxRelDiff(eval func(x float64) float64, counts []float64, lo, hi int) (float64, int) {
	worst, at := 0.0, lo
	for ch := lo; ch <= hi; ch++ {
		d := math.Abs(eval(float64(ch)) - counts[ch])
		if counts[ch] != 0 {
			d /= math.Abs(counts[ch])
		}
		if d > worst || math.IsNaN(d) {
			worst, at = d, ch
			if math.IsNaN(d) {
				break
			}
		}
	}
	return worst, at
}
