package fit

// State is a phase of the fit lifecycle.
type State int

const (
	StateIdle State = iota
	StateSelectingLimits
	StateSelectingPeaks
	StateFitting
	// StateRefining is entered when the first pass ran out of iterations
	// and is retried with a larger budget.
	StateRefining
	// StateRefiningSkew is entered when the skew parameters are released.
	StateRefiningSkew
	StateFitted
	StateFailed
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelectingLimits:
		return "selecting-limits"
	case StateSelectingPeaks:
		return "selecting-peaks"
	case StateFitting:
		return "fitting"
	case StateRefining:
		return "refining"
	case StateRefiningSkew:
		return "refining-skew"
	case StateFitted:
		return "fitted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Done reports whether the state is terminal for a fit.
func (s State) Done() bool {
	return s == StateFitted || s == StateFailed
}
