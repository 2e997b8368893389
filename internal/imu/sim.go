package imu

import (
	"context"
	"math/rand"
	"sync"

	"github.com/golang/geo/r3"
)

// SimConfig describes a simulated device at rest with z pointing up.
type SimConfig struct {
	AccelBias r3.Vector
	GyroBias  r3.Vector
	// Gravity is 1 g in accelerometer counts.
	Gravity float64
	// Noise is the standard deviation of gaussian noise added to every axis.
	Noise float64
	Seed  int64
	// Limit caps the number of reads before ErrExhausted; zero is unlimited.
	Limit int
}

// Sim is a deterministic stand-in for an MPU-6050. Its offset registers add
// 1:1 to readings, matching the software correction.
type Sim struct {
	cfg     SimConfig
	mu      sync.Mutex
	rng     *rand.Rand
	offsets Offsets
	reads   int
}

func NewSim(cfg SimConfig) *Sim {
	if cfg.Gravity == 0 {
		cfg.Gravity = DefaultGravityLSB
	}
	return &Sim{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (s *Sim) Read(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Limit > 0 && s.reads >= s.cfg.Limit {
		return Sample{}, ErrExhausted
	}
	s.reads++

	accel := r3.Vector{Z: s.cfg.Gravity}.Add(s.cfg.AccelBias).Add(s.offsets.Accel).Add(s.noise())
	gyro := s.cfg.GyroBias.Add(s.offsets.Gyro).Add(s.noise())

	return Sample{Accel: accel, Gyro: gyro}, nil
}

func (s *Sim) SetOffsets(ctx context.Context, offsets Offsets) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.offsets = offsets
	s.mu.Unlock()
	return nil
}

// Reads returns the number of samples delivered so far.
func (s *Sim) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *Sim) Close() error {
	return nil
}

func (s *Sim) noise() r3.Vector {
	if s.cfg.Noise == 0 {
		return r3.Vector{}
	}
	return r3.Vector{
		X: s.rng.NormFloat64() * s.cfg.Noise,
		Y: s.rng.NormFloat64() * s.cfg.Noise,
		Z: s.rng.NormFloat64() * s.cfg.Noise,
	}
}
