package math

import (
	m "math"

	"golang.org/x/exp/constraints"
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// Lerp linearly interpolates between a and b.
func Lerp[T constraints.Float](a, b, t T) T {
	return a + (b-a)*t
}

// DampFactor turns a per-second approach rate into a frame-rate independent
// interpolation factor: 1 - e^(-rate*dt).
func DampFactor(rate, dt float64) float32 {
	if rate <= 0 || dt <= 0 {
		return 0
	}
	return float32(1 - m.Exp(-rate*dt))
}
