package imu

import (
	"context"

	"github.com/golang/geo/r3"
)

// Sample is one raw accelerometer + gyroscope read, in LSB counts.
type Sample struct {
	Accel r3.Vector
	Gyro  r3.Vector
}

// Offsets is the six-axis bias correction. Values are additive corrections in
// raw reading units: corrected = raw + offset.
type Offsets struct {
	Accel r3.Vector
	Gyro  r3.Vector
}

// Source supplies raw samples on demand
type Source interface {
	// Read blocks until the device returns a sample or ctx is done.
	// Exhausted sources return ErrExhausted.
	Read(ctx context.Context) (Sample, error)
}

// OffsetSetter is the optional capability of applying bias correction at the
// hardware register level.
type OffsetSetter interface {
	SetOffsets(ctx context.Context, offsets Offsets) error
}

// Device is a source that owns hardware resources.
type Device interface {
	Source
	Close() error
}
