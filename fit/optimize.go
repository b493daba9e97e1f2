package fit

import (
	"context"
	"fmt"
	"math"
)

// optimize runs damped Gauss-Newton iterations on the active parameters
// until they converge or budget iterations have been used.
//
// Steps are judged by the weighted residual sum the normal equations
// minimise, with the weights of the iteration held fixed. A step that
// leaves the valid region, makes that sum NaN or raises it is reverted
// and retried with twice the damping. At the damping cap a rejected step
// is accepted as a no-op; a second such step in a row means no further
// progress is possible and the pass fails with ErrDiverged, unless the
// rejected increment was already within the convergence threshold.
func (s *Session) optimize(ctx context.Context, cfg *Config, budget int) error {
	lambda := cfg.InitialDamping
	stalled := false

	for iter := 0; iter < budget; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.iterations++

		ne, err := s.buildNormalEquations()
		if err != nil {
			return err
		}
		if len(ne.Active) == 0 {
			return nil
		}
		start := s.objective(ne)
		prev := append([]float64(nil), s.params...)

		for {
			step, err := ne.Solve(lambda)
			if err != nil {
				return err
			}
			s.apply(ne.Active, step.Delta)

			end := s.objective(ne)
			if s.valid() && !math.IsNaN(end) && !(end > start && end > 0) {
				lambda /= 10
				stalled = false
				if s.stepConverged(ne.Active, prev, step, cfg.ConvergenceFrac) {
					return nil
				}
				break
			}

			copy(s.params, prev)
			cfg.Metrics.observeReject()
			cfg.Logger.WithField("session", s.ID).Tracef("step rejected at damping %g (objective %g -> %g)", lambda, start, end)

			if lambda >= cfg.DampingCap {
				if s.stepConverged(ne.Active, prev, step, cfg.ConvergenceFrac) {
					return nil
				}
				if stalled {
					return fmt.Errorf("%w: no acceptable step at damping %g", ErrDiverged, lambda)
				}
				stalled = true
				break
			}

			if lambda == 0 {
				lambda = 0.001
			} else {
				lambda = math.Min(2*lambda, cfg.DampingCap)
			}
		}
	}
	return fmt.Errorf("%w after %d iterations", ErrIterationBudget, budget)
}

// stepConverged reports whether every active parameter changed by at most
// frac of its previous value or frac of its uncertainty.
func (s *Session) stepConverged(active []int, prev []float64, step *Step, frac float64) bool {
	for a, p := range active {
		d := math.Abs(step.Delta[a])
		if d <= frac*math.Abs(prev[p]) || d <= frac*step.Sigma[a] {
			continue
		}
		return false
	}
	return true
}
