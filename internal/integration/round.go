package integration

import (
	"math"

	"github.com/golang/geo/r3"
)

// Round rounds v to decimals digits, halves away from zero. Values too large
// to scale are returned unchanged.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	scaled := v * p
	if math.IsInf(scaled, 0) || math.IsNaN(scaled) {
		return v
	}
	return math.Round(scaled) / p
}

func roundVector(v r3.Vector, decimals int) r3.Vector {
	return r3.Vector{
		X: Round(v.X, decimals),
		Y: Round(v.Y, decimals),
		Z: Round(v.Z, decimals),
	}
}

func finite(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
