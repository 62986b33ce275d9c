// Package doa estimates the direction of arrival of a sound source
// from pairwise time differences across the 4-microphone square array
package doa

// NormalizeDeg normalizes an angle to [0, 360)
func NormalizeDeg(deg float64) float64 {
	for deg < 0 {
		deg += 360
	}
	for deg >= 360 {
		deg -= 360
	}
	return deg
}

// WrapDiffDeg wraps an angular difference into (-180, 180], the
// shortest path around the circle
func WrapDiffDeg(diff float64) float64 {
	for diff > 180 {
		diff -= 360
	}
	for diff <= -180 {
		diff += 360
	}
	return diff
}

// Clamp clamps a value to [min, max]
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
