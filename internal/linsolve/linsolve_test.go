package linsolve

import (
	"errors"
	"math"
	"testing"
)

func TestSolveSPD(t *testing.T) {
	a := []float64{
		4, 1, 0.5,
		1, 3, 0.2,
		0.5, 0.2, 2,
	}
	want := []float64{1, -2, 0.5}
	b := mulVec(a, want)

	sol, err := Solve(a, b)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if math.Abs(sol.X[i]-want[i]) > 1e-12 {
			t.Fatalf("x[%d] = %v, want %v", i, sol.X[i], want[i])
		}
	}

	// a·inv = I
	n := len(want)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var s float64
			for k := 0; k < n; k++ {
				s += a[i*n+k] * sol.Inverse.At(k, j)
			}
			expect := 0.0
			if i == j {
				expect = 1
			}
			if math.Abs(s-expect) > 1e-12 {
				t.Fatalf("(a·inv)[%d][%d] = %v, want %v", i, j, s, expect)
			}
		}
	}
	if sol.InverseDiag(0) <= 0 {
		t.Fatalf("InverseDiag(0) = %v, want positive", sol.InverseDiag(0))
	}
}

func TestSolveIndefiniteFallsBackToLU(t *testing.T) {
	a := []float64{
		1, 2,
		2, 1,
	}
	want := []float64{3, -1}
	sol, err := Solve(a, mulVec(a, want))
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if math.Abs(sol.X[i]-want[i]) > 1e-12 {
			t.Fatalf("x[%d] = %v, want %v", i, sol.X[i], want[i])
		}
	}
	// inverse of [[1 2][2 1]] is [[-1 2][2 -1]]/3
	if math.Abs(sol.Inverse.At(0, 1)-2.0/3) > 1e-12 {
		t.Fatalf("inv[0][1] = %v, want 2/3", sol.Inverse.At(0, 1))
	}
}

func TestSolveSingular(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
	}{
		{name: "rank deficient", a: []float64{1, 1, 1, 1}, b: []float64{1, 2}},
		{name: "zero", a: []float64{0, 0, 0, 0}, b: []float64{1, 1}},
		{name: "nan", a: []float64{1, 0, 0, math.NaN()}, b: []float64{1, 1}},
		{name: "inf", a: []float64{1, 0, 0, math.Inf(1)}, b: []float64{1, 1}},
		{name: "empty", a: nil, b: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Solve(tt.a, tt.b); !errors.Is(err, ErrSingular) {
				t.Fatalf("Solve() error = %v, want ErrSingular", err)
			}
		})
	}
}

func TestSolveDimensionMismatch(t *testing.T) {
	_, err := Solve([]float64{1, 2, 3}, []float64{1, 2})
	if err == nil || errors.Is(err, ErrSingular) {
		t.Fatalf("Solve() error = %v, want dimension error", err)
	}
}

func TestSolveDoesNotModifyInput(t *testing.T) {
	a := []float64{2, 1, 1, 2}
	b := []float64{1, 1}
	if _, err := Solve(a, b); err != nil {
		t.Fatal(err)
	}
	if a[0] != 2 || a[1] != 1 || a[2] != 1 || a[3] != 2 || b[0] != 1 || b[1] != 1 {
		t.Fatalf("inputs modified: a=%v b=%v", a, b)
	}
}

func mulVec(a, x []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i] += a[i*n+j] * x[j]
		}
	}
	return out
}
