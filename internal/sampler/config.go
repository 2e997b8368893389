package sampler

import (
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/imu"
)

const (
	defaultInterval       = 5 * time.Millisecond
	defaultStatusInterval = time.Second
	defaultReadTimeout    = time.Second
)

type Config struct {
	// Interval is the spacing between integration steps.
	Interval time.Duration
	// StatusInterval controls the periodic progress log; zero disables it.
	StatusInterval time.Duration
	// GravityReference is 1 g in accelerometer LSB.
	GravityReference float64
	// ReadTimeout bounds a single read; zero disables the bound.
	ReadTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:         defaultInterval,
		StatusInterval:   defaultStatusInterval,
		GravityReference: imu.DefaultGravityLSB,
		ReadTimeout:      defaultReadTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 || c.StatusInterval < 0 || c.ReadTimeout < 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Interval       time.Duration
			StatusInterval time.Duration
			ReadTimeout    time.Duration
		}{
			Interval:       c.Interval,
			StatusInterval: c.StatusInterval,
			ReadTimeout:    c.ReadTimeout,
		})
	}
	if c.GravityReference <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value float64
		}{
			Field: "gravity_reference",
			Value: c.GravityReference,
		})
	}
	return nil
}
