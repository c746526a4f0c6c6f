package nettopogen

// nettopogen.go holds small helpers shared across the simulation engine

import "math"

// rdigits is the precision used when rounding floats whose exact value
// feeds equality comparisons, e.g. convergence detection
var rdigits uint = 12

// roundFloat rounds a float to the given number of digits after the decimal point
func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// clampFloat pins val into [lo, hi]
func clampFloat(val, lo, hi float64) float64 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// sampleExpRV returns an exponentially distributed random variable with the
// given rate, from a U(0,1) sample
func sampleExpRV(u01 float64, rate float64) float64 {
	return -math.Log(1.0-u01) / rate
}
