package fit

import "errors"

var (
	// ErrInsufficientDOF is returned when the fit range leaves no degrees of
	// freedom for the requested number of peaks.
	ErrInsufficientDOF = errors.New("fit: insufficient degrees of freedom")
	// ErrSingularSystem is returned when the normal equations cannot be
	// solved.
	ErrSingularSystem = errors.New("fit: singular system")
	// ErrDiverged is returned when no step at maximum damping keeps the
	// parameters valid and the chi-square from rising.
	ErrDiverged = errors.New("fit: diverged or invalid parameters")
	// ErrIterationBudget is returned when a pass does not converge within
	// its iteration budget.
	ErrIterationBudget = errors.New("fit: iteration budget exhausted")

	// ErrInvalidRange rejects an empty or out-of-spectrum fit range, or a
	// peak outside it.
	ErrInvalidRange = errors.New("fit: invalid fit range")
	// ErrTooManyPeaks rejects requests above Config.MaxPeaks.
	ErrTooManyPeaks = errors.New("fit: too many peaks")
	// ErrNoPeaks rejects a skewed fit without peaks.
	ErrNoPeaks = errors.New("fit: no peaks")
	// ErrInvalidFix rejects a fixed-parameter index the fit cannot hold.
	ErrInvalidFix = errors.New("fit: invalid fixed parameter")
	// ErrFitInProgress is returned while another fit runs on the Fitter.
	ErrFitInProgress = errors.New("fit: fit in progress")
	// ErrPeakIndex reports a peak index outside the session.
	ErrPeakIndex = errors.New("fit: peak index out of range")
	// ErrNotFitted is returned for results of a session that did not converge.
	ErrNotFitted = errors.New("fit: no converged fit")
	// ErrNilAccessor rejects a Fitter without a spectrum.
	ErrNilAccessor = errors.New("fit: nil spectrum accessor")
	// ErrInvalidState rejects a Selector call out of sequence.
	ErrInvalidState = errors.New("fit: operation not valid in current state")
)
