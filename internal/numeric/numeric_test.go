package numeric

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		min      float64
		max      float64
		expected float64
	}{
		{name: "inside", value: 0.5, min: 0, max: 1, expected: 0.5},
		{name: "below", value: -1, min: 0, max: 1, expected: 0},
		{name: "above", value: 2, min: 0, max: 1, expected: 1},
		{name: "swapped", value: 2, min: 1, max: 0, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clamp(tt.value, tt.min, tt.max)
			if got != tt.expected {
				t.Fatalf("Clamp() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsFinite(t *testing.T) {
	if !IsFinite(1) {
		t.Fatal("1 should be finite")
	}
	if IsFinite(math.NaN()) || IsFinite(math.Inf(-1)) {
		t.Fatal("NaN and Inf must not be finite")
	}
}

func TestAccumulatorCompensated(t *testing.T) {
	// Naive summation loses the small terms entirely.
	var acc Accumulator
	for _, v := range []float64{1e16, 1, 1, 1, 1, -1e16} {
		acc.Add(v)
	}
	if got := acc.Sum(); got != 4 {
		t.Fatalf("Sum() = %v, want 4", got)
	}
}

func TestDot(t *testing.T) {
	got := Dot([]float64{1, 2, 3}, []float64{4, 5, 6})
	if got != 32 {
		t.Fatalf("Dot() = %v, want 32", got)
	}
	if got := Dot([]float64{1e16, 1, -1e16}, []float64{1, 1, 1}); got != 1 {
		t.Fatalf("Dot() = %v, want compensated 1", got)
	}
}

func TestDotPanicsOnMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for length mismatch")
		}
	}()
	Dot([]float64{1}, []float64{1, 2})
}
