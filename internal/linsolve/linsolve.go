// Package linsolve solves the small dense symmetric systems produced by the
// peak fitter.
//
// The matrix is factorised with a Cholesky decomposition. Damped normal
// equations are positive definite in exact arithmetic; when rounding makes
// the factorisation fail, an LU decomposition with partial pivoting is used
// instead. Either way the inverse is returned alongside the solution since
// the caller derives parameter covariances from it.
package linsolve

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-peakfit/internal/numeric"
)

// ErrSingular is returned when the matrix cannot be inverted.
var ErrSingular = errors.New("linsolve: singular matrix")

// conditionLimit rejects factorisations whose estimated condition number
// leaves no significant digits in the solution.
const conditionLimit = 1e15

// Solution holds the solution vector and the matrix inverse.
type Solution struct {
	X       []float64
	Inverse *mat.SymDense
}

// InverseDiag returns the i-th diagonal element of the inverse.
func (s *Solution) InverseDiag(i int) float64 {
	return s.Inverse.At(i, i)
}

// Solve solves a·x = b for the symmetric n×n matrix a, given in row-major
// order. Only the upper triangle of a is read.
func Solve(a, b []float64) (*Solution, error) {
	n := len(b)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty system", ErrSingular)
	}
	if len(a) != n*n {
		return nil, fmt.Errorf("linsolve: matrix has %d elements, want %d", len(a), n*n)
	}
	for _, v := range a {
		if !numeric.IsFinite(v) {
			return nil, fmt.Errorf("%w: non-finite element", ErrSingular)
		}
	}

	sym := mat.NewSymDense(n, append([]float64(nil), a...))
	rhs := mat.NewVecDense(n, append([]float64(nil), b...))

	sol, err := solveCholesky(sym, rhs)
	if err != nil {
		sol, err = solveLU(sym, rhs)
	}
	if err != nil {
		return nil, err
	}

	for _, v := range sol.X {
		if !numeric.IsFinite(v) {
			return nil, fmt.Errorf("%w: non-finite solution", ErrSingular)
		}
	}
	return sol, nil
}

func solveCholesky(sym *mat.SymDense, rhs *mat.VecDense) (*Solution, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, ErrSingular
	}
	if chol.Cond() > conditionLimit {
		return nil, ErrSingular
	}

	var x mat.VecDense
	if err := chol.SolveVecTo(&x, rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return &Solution{X: vecData(&x), Inverse: &inv}, nil
}

func solveLU(sym *mat.SymDense, rhs *mat.VecDense) (*Solution, error) {
	n := sym.SymmetricDim()
	dense := mat.NewDense(n, n, nil)
	dense.Copy(sym)

	var lu mat.LU
	lu.Factorize(dense)
	if lu.Cond() > conditionLimit {
		return nil, ErrSingular
	}

	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	var inv mat.Dense
	if err := inv.Inverse(dense); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(inv.At(i, j)+inv.At(j, i)))
		}
	}
	return &Solution{X: vecData(&x), Inverse: out}, nil
}

func vecData(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
