package spectrum_test

import (
	"fmt"

	"github.com/cwbudde/algo-peakfit/spectrum"
)

func ExampleHistogram_BinValue() {
	h, _ := spectrum.NewHistogram([]float64{1, 2, 3, 4}, spectrum.WithContraction(2))
	fmt.Println(h.BinValue(0), h.BinValue(2))
	// Output:
	// 3 7
}
