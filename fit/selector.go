package fit

import (
	"context"
	"fmt"
)

// Selector collects a fit range and peak positions one click at a time and
// starts the fit when the selection is complete.
//
// Limits may be given in either order. Peaks are accepted only inside the
// limits, and adding the maximum number of peaks starts the fit at once.
type Selector struct {
	fitter   *Fitter
	template Request

	state  State
	limits []int
	peaks  []float64
}

// NewSelector returns an idle selector. template supplies the fit type,
// weighting and width linking of the fits it starts.
func NewSelector(f *Fitter, template Request) *Selector {
	return &Selector{fitter: f, template: template, state: StateIdle}
}

// State returns the selection state.
func (s *Selector) State() State { return s.state }

// Limits returns the selected fit range once both limits are set.
func (s *Selector) Limits() (start, end int, ok bool) {
	if len(s.limits) < 2 {
		return 0, 0, false
	}
	return s.limits[0], s.limits[1], true
}

// Peaks returns a copy of the selected peak positions.
func (s *Selector) Peaks() []float64 { return append([]float64(nil), s.peaks...) }

// Begin discards any selection and waits for the first limit.
func (s *Selector) Begin() {
	s.limits = s.limits[:0]
	s.peaks = s.peaks[:0]
	s.state = StateSelectingLimits
}

// Reset returns the selector to idle.
func (s *Selector) Reset() {
	s.limits = s.limits[:0]
	s.peaks = s.peaks[:0]
	s.state = StateIdle
}

// AddLimit records a fit range limit. The second limit moves the selector
// to peak selection.
func (s *Selector) AddLimit(ch int) error {
	if s.state != StateSelectingLimits {
		return fmt.Errorf("%w: add limit while %s", ErrInvalidState, s.state)
	}
	s.limits = append(s.limits, ch)
	if len(s.limits) == 2 {
		if s.limits[0] > s.limits[1] {
			s.limits[0], s.limits[1] = s.limits[1], s.limits[0]
		}
		if s.limits[0] == s.limits[1] {
			s.limits = s.limits[:1]
			return fmt.Errorf("%w: empty range at %d", ErrInvalidRange, ch)
		}
		s.state = StateSelectingPeaks
	}
	return nil
}

// AddPeak records a peak position inside the limits. When the maximum
// number of peaks is reached the fit is started and its notification
// channel is returned; otherwise the channel is nil.
func (s *Selector) AddPeak(ctx context.Context, pos float64) (<-chan Notification, error) {
	if s.state != StateSelectingPeaks {
		return nil, fmt.Errorf("%w: add peak while %s", ErrInvalidState, s.state)
	}
	if pos < float64(s.limits[0]) || pos > float64(s.limits[1]) {
		return nil, fmt.Errorf("%w: peak %g outside [%d, %d]", ErrInvalidRange, pos, s.limits[0], s.limits[1])
	}
	s.peaks = append(s.peaks, pos)
	if len(s.peaks) < s.fitter.cfg.MaxPeaks {
		return nil, nil
	}
	return s.Commit(ctx)
}

// Commit starts the fit with the current selection.
func (s *Selector) Commit(ctx context.Context) (<-chan Notification, error) {
	if s.state != StateSelectingPeaks {
		return nil, fmt.Errorf("%w: commit while %s", ErrInvalidState, s.state)
	}
	req := s.template
	req.Start, req.End = s.limits[0], s.limits[1]
	req.Peaks = s.Peaks()

	ch, err := s.fitter.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	s.state = StateFitting
	return ch, nil
}

// Observe updates the selector state from a notification of the fit it
// started.
func (s *Selector) Observe(n Notification) {
	if s.state >= StateFitting {
		s.state = n.State
	}
}
