// Package spectrum provides read-only access to one-dimensional histogram
// data for peak fitting.
//
// The fitting packages never touch raw histogram storage directly. They read
// bin values and fit weights through the [Accessor] interface, which hides
// the channel contraction (binning) factor and any scaling or variance
// bookkeeping done by the owner of the spectrum.
//
// # Usage
//
//	h, err := spectrum.NewHistogram(counts, spectrum.WithContraction(2))
//	v := h.BinValue(1024)     // sum of raw channels 1024 and 1025
//	w := h.BinFitWeight(1024) // statistical variance of that bin
package spectrum
