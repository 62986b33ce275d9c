package dsp

import "math"

// HannWindow returns symmetric Hann window coefficients of the given size.
func HannWindow(size int) []float64 {
	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(size-1)))
	}
	return coeffs
}
