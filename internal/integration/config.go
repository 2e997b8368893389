package integration

import "codeberg.org/mutker/imuctl/internal/errors"

const (
	// StandardGravity converts g-force to m/s².
	StandardGravity = 9.80665

	defaultNoiseGateG       = 1.0
	defaultRoundingDecimals = 2
	maxRoundingDecimals     = 15
)

type Config struct {
	// NoiseGateG zeroes the contribution of any axis whose magnitude is below
	// this many g. It is a heuristic for at-rest jitter, not a physical model:
	// genuine acceleration below the threshold is discarded too, and gravity
	// on a level z axis (exactly 1 g) passes the default gate. Nil integrates
	// every sample.
	NoiseGateG *float64
	// RoundingDecimals applies to velocity after each update and to the
	// acceleration carried in records.
	RoundingDecimals int
}

func DefaultConfig() Config {
	gate := defaultNoiseGateG
	return Config{
		NoiseGateG:       &gate,
		RoundingDecimals: defaultRoundingDecimals,
	}
}

// Gate returns a threshold pointer suitable for Config.NoiseGateG.
func Gate(g float64) *float64 {
	return &g
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.NoiseGateG != nil && *c.NoiseGateG < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value float64
		}{
			Field: "noise_gate_g",
			Value: *c.NoiseGateG,
		})
	}
	if c.RoundingDecimals < 0 || c.RoundingDecimals > maxRoundingDecimals {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value int
		}{
			Field: "rounding_decimals",
			Value: c.RoundingDecimals,
		})
	}
	return nil
}
