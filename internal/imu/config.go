package imu

import (
	"fmt"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/logger"
)

const (
	KindMPU6050 = "mpu6050"
	KindSim     = "sim"
)

type Config struct {
	Kind    string
	Bus     string
	Address uint16
	Sim     SimConfig
}

func DefaultConfig() Config {
	return Config{
		Kind:    KindMPU6050,
		Address: DefaultMPU6050Address,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	switch c.Kind {
	case KindMPU6050:
		if c.Address != DefaultMPU6050Address && c.Address != AltMPU6050Address {
			return errFactory.WithData(errors.ErrInvalidConfig, struct {
				Field   string
				Address uint16
			}{
				Field:   "address",
				Address: c.Address,
			})
		}
	case KindSim:
	default:
		return errFactory.WithData(ErrUnknownDevice, c.Kind)
	}
	return nil
}

// Name identifies the physical device for profiles and PID files.
func (c Config) Name() string {
	if c.Kind == KindSim {
		return KindSim
	}
	bus := c.Bus
	if bus == "" {
		bus = "default"
	}
	return fmt.Sprintf("%s@%s:0x%02x", c.Kind, bus, c.Address)
}

// Open returns the device selected by cfg.Kind.
func Open(cfg Config, log logger.Logger) (Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Kind == KindSim {
		log.Info().
			Interface("accel_bias", cfg.Sim.AccelBias).
			Interface("gyro_bias", cfg.Sim.GyroBias).
			Float64("noise", cfg.Sim.Noise).
			Msg("Using simulated IMU")
		return NewSim(cfg.Sim), nil
	}

	dev, err := OpenMPU6050(cfg.Bus, cfg.Address, log)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("bus", cfg.Bus).
		Uint16("address", cfg.Address).
		Msg("Detected MPU-6050")
	return dev, nil
}
