package imu

import "github.com/golang/geo/r3"

const (
	// DefaultGravityLSB is 1 g at the ±2 g full-scale range of a 16-bit accelerometer.
	DefaultGravityLSB = 16384.0
	// DefaultGyroLSB is 1 °/s at the ±250 °/s full-scale range.
	DefaultGyroLSB = 131.0
)

// ToG converts raw accelerometer counts to g using lsbPerG counts per g.
func ToG(raw r3.Vector, lsbPerG float64) r3.Vector {
	return divide(raw, lsbPerG)
}

// ToDegPerSec converts raw gyroscope counts to °/s.
func ToDegPerSec(raw r3.Vector, lsbPerDeg float64) r3.Vector {
	return divide(raw, lsbPerDeg)
}

func divide(v r3.Vector, d float64) r3.Vector {
	return r3.Vector{X: v.X / d, Y: v.Y / d, Z: v.Z / d}
}
