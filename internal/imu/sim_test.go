package imu_test

import (
	"context"
	"testing"

	"codeberg.org/mutker/imuctl/internal/imu"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimReadsBiasAndGravity(t *testing.T) {
	sim := imu.NewSim(imu.SimConfig{
		AccelBias: r3.Vector{X: 40, Y: -24, Z: 80},
		GyroBias:  r3.Vector{X: 3, Y: -2, Z: 1},
	})

	s, err := sim.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, r3.Vector{X: 40, Y: -24, Z: imu.DefaultGravityLSB + 80}, s.Accel)
	assert.Equal(t, r3.Vector{X: 3, Y: -2, Z: 1}, s.Gyro)
}

func TestSimOffsetsAreAdditive(t *testing.T) {
	sim := imu.NewSim(imu.SimConfig{AccelBias: r3.Vector{X: 40}})
	require.NoError(t, sim.SetOffsets(context.Background(), imu.Offsets{
		Accel: r3.Vector{X: -40},
		Gyro:  r3.Vector{Z: 5},
	}))

	s, err := sim.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Accel.X)
	assert.Equal(t, 5.0, s.Gyro.Z)
}

func TestSimLimit(t *testing.T) {
	sim := imu.NewSim(imu.SimConfig{Limit: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := sim.Read(ctx)
		require.NoError(t, err)
	}
	_, err := sim.Read(ctx)
	require.ErrorIs(t, err, imu.ErrExhausted)
	assert.Equal(t, 2, sim.Reads())
}

func TestSimNoiseIsDeterministic(t *testing.T) {
	a := imu.NewSim(imu.SimConfig{Noise: 4, Seed: 7})
	b := imu.NewSim(imu.SimConfig{Noise: 4, Seed: 7})

	for i := 0; i < 10; i++ {
		sa, err := a.Read(context.Background())
		require.NoError(t, err)
		sb, err := b.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, sa, sb)
	}
}

type readOnly struct {
	imu.Source
}

func TestWithOffsetsPrefersHardware(t *testing.T) {
	ctx := context.Background()
	offsets := imu.Offsets{Accel: r3.Vector{X: -40}}

	sim := imu.NewSim(imu.SimConfig{AccelBias: r3.Vector{X: 40}})
	src, err := imu.WithOffsets(ctx, sim, offsets)
	require.NoError(t, err)
	assert.Same(t, sim, src)

	s, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Accel.X)
}

func TestWithOffsetsFallsBackToSoftware(t *testing.T) {
	ctx := context.Background()
	offsets := imu.Offsets{Accel: r3.Vector{X: -40}, Gyro: r3.Vector{Y: 2}}

	src, err := imu.WithOffsets(ctx, readOnly{imu.NewSim(imu.SimConfig{AccelBias: r3.Vector{X: 40}})}, offsets)
	require.NoError(t, err)
	_, isSetter := src.(imu.OffsetSetter)
	assert.False(t, isSetter)

	s, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Accel.X)
	assert.Equal(t, 2.0, s.Gyro.Y)
}

func TestToG(t *testing.T) {
	g := imu.ToG(r3.Vector{X: 8192, Y: -16384, Z: 32768}, imu.DefaultGravityLSB)
	assert.Equal(t, r3.Vector{X: 0.5, Y: -1, Z: 2}, g)
	assert.Equal(t, r3.Vector{X: 1}, imu.ToDegPerSec(r3.Vector{X: 131}, imu.DefaultGyroLSB))
}

func TestConfigValidate(t *testing.T) {
	cfg := imu.DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Address = 0x50
	require.Error(t, cfg.Validate())

	cfg = imu.Config{Kind: "bmi160"}
	require.Error(t, cfg.Validate())

	cfg = imu.Config{Kind: imu.KindSim}
	require.NoError(t, cfg.Validate())
}

func TestConfigName(t *testing.T) {
	assert.Equal(t, "mpu6050@default:0x68", imu.DefaultConfig().Name())
	assert.Equal(t, "mpu6050@/dev/i2c-1:0x69", imu.Config{Kind: imu.KindMPU6050, Bus: "/dev/i2c-1", Address: 0x69}.Name())
	assert.Equal(t, "sim", imu.Config{Kind: imu.KindSim}.Name())
}
