package model

// FitType selects whether the skewed tail term takes part in the model.
type FitType int

const (
	// Symmetric fits pure Gaussian peaks.
	Symmetric FitType = iota
	// Skewed fits Gaussians mixed with a low-energy exponential tail.
	Skewed
)

// String returns the lower-case name of the fit type.
func (t FitType) String() string {
	switch t {
	case Symmetric:
		return "symmetric"
	case Skewed:
		return "skewed"
	default:
		return "unknown"
	}
}

// Parameter vector layout.
const (
	IndexA        = 0
	IndexB        = 1
	IndexC        = 2
	IndexR        = 3
	IndexBeta     = 4
	IndexReserved = 5

	// NumGlobal is the number of parameters shared by all peaks.
	NumGlobal = 6
	// ParamsPerPeak is the number of parameters owned by one peak.
	ParamsPerPeak = 3
)

// NumParams returns the parameter vector length for numPeaks peaks.
func NumParams(numPeaks int) int { return NumGlobal + ParamsPerPeak*numPeaks }

// NumPeaksFor returns the number of peaks described by a vector of length n.
func NumPeaksFor(n int) int {
	if n < NumGlobal {
		return 0
	}
	return (n - NumGlobal) / ParamsPerPeak
}

// AmplitudeIndex returns the vector index of a peak's amplitude.
func AmplitudeIndex(peak int) int { return NumGlobal + ParamsPerPeak*peak }

// CentroidIndex returns the vector index of a peak's centroid.
func CentroidIndex(peak int) int { return NumGlobal + ParamsPerPeak*peak + 1 }

// WidthIndex returns the vector index of a peak's width (Gaussian sigma).
func WidthIndex(peak int) int { return NumGlobal + ParamsPerPeak*peak + 2 }

// PeakOf reports which peak owns vector index i and the parameter class
// within the peak. ok is false for global parameters.
func PeakOf(i int) (peak int, class Param, ok bool) {
	if i < NumGlobal {
		switch i {
		case IndexR:
			return -1, ParamR, false
		case IndexBeta:
			return -1, ParamBeta, false
		}
		return -1, ParamBackground, false
	}
	off := i - NumGlobal
	return off / ParamsPerPeak, Param(off % ParamsPerPeak), true
}

// Param identifies a parameter class for derivative evaluation.
type Param int

const (
	ParamAmplitude Param = iota
	ParamCentroid
	ParamWidth
	ParamR
	ParamBeta
	ParamBackground
)
