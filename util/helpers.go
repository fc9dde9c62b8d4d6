package util

import "math"

// Clamp limits v to the inclusive range [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Finite returns v, or def when v is NaN or infinite.
func Finite(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// NearlyEqual reports whether a and b agree within a relative tolerance.
// Absolute comparison is used near zero where relative error degenerates.
func NearlyEqual(a, b, tol float64) bool {
	diff := math.Abs(a - b)
	if diff <= tol {
		return true
	}
	largest := math.Max(math.Abs(a), math.Abs(b))
	return diff <= largest*tol
}
