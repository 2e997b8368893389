package calibration

import (
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/imu"
)

const (
	defaultBufferSize     = 1000
	defaultWarmupSamples  = 100
	defaultAccelDeadzone  = 8
	defaultGyroDeadzone   = 1
	defaultSampleInterval = 2 * time.Millisecond
	defaultReadTimeout    = time.Second
	defaultMaxIterations  = 100

	// Closed-form divisors for the initial offset estimate.
	accelInitialDivisor = 8
	gyroInitialDivisor  = 4
)

type Config struct {
	// BufferSize is the number of samples averaged per pass.
	BufferSize int
	// WarmupSamples are read and discarded before every window.
	WarmupSamples int
	// AccelDeadzone is the accelerometer tolerance in LSB. Lower values give
	// more precision but may never converge.
	AccelDeadzone float64
	// GyroDeadzone is the gyroscope tolerance in LSB.
	GyroDeadzone float64
	// GravityReference is 1 g in accelerometer LSB for the configured range.
	GravityReference float64
	// SampleInterval is the minimum spacing between consecutive reads.
	SampleInterval time.Duration
	// ReadTimeout bounds a single read; zero disables the bound.
	ReadTimeout   time.Duration
	MaxIterations int
	// Timeout is an overall deadline for Run; zero means none.
	Timeout time.Duration
	// SettleDelay is waited between phases.
	SettleDelay time.Duration
	// Verify runs one extra averaging pass with the final offsets.
	Verify bool
}

func DefaultConfig() Config {
	return Config{
		BufferSize:       defaultBufferSize,
		WarmupSamples:    defaultWarmupSamples,
		AccelDeadzone:    defaultAccelDeadzone,
		GyroDeadzone:     defaultGyroDeadzone,
		GravityReference: imu.DefaultGravityLSB,
		SampleInterval:   defaultSampleInterval,
		ReadTimeout:      defaultReadTimeout,
		MaxIterations:    defaultMaxIterations,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	invalid := func(field string, value any) error {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value any
		}{
			Field: field,
			Value: value,
		})
	}

	switch {
	case c.BufferSize < 1:
		return invalid("buffer_size", c.BufferSize)
	case c.WarmupSamples < 0:
		return invalid("warmup_samples", c.WarmupSamples)
	case c.AccelDeadzone <= 0:
		return invalid("accel_deadzone", c.AccelDeadzone)
	case c.GyroDeadzone < 0:
		return invalid("gyro_deadzone", c.GyroDeadzone)
	case c.GravityReference <= 0:
		return invalid("gravity_reference", c.GravityReference)
	case c.SampleInterval < 0:
		return invalid("sample_interval", c.SampleInterval)
	case c.ReadTimeout < 0:
		return invalid("read_timeout", c.ReadTimeout)
	case c.MaxIterations < 1:
		return invalid("max_iterations", c.MaxIterations)
	case c.Timeout < 0:
		return invalid("timeout", c.Timeout)
	case c.SettleDelay < 0:
		return invalid("settle_delay", c.SettleDelay)
	}
	return nil
}
