package sampler

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/imu"
	"codeberg.org/mutker/imuctl/internal/integration"
	"codeberg.org/mutker/imuctl/internal/logger"
	"codeberg.org/mutker/imuctl/internal/records"
	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenSource struct{}

func (brokenSource) Read(context.Context) (imu.Sample, error) {
	return imu.Sample{}, stderrors.New("i2c: nack")
}

type stalledSource struct{}

func (stalledSource) Read(ctx context.Context) (imu.Sample, error) {
	<-ctx.Done()
	return imu.Sample{}, ctx.Err()
}

func newTestSampler(t *testing.T, src imu.Source) (*Sampler, *records.Memory, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock()
	mem := records.NewMemory(16)
	p, err := integration.New(integration.DefaultConfig(), mem, clk, logger.New("integration"))
	require.NoError(t, err)

	s, err := New(DefaultConfig(), src, p, clk, logger.New("sampler"))
	require.NoError(t, err)

	return s, mem, clk
}

func TestTickScalesAndIntegrates(t *testing.T) {
	src := imu.NewSim(imu.SimConfig{AccelBias: r3.Vector{X: 2 * imu.DefaultGravityLSB}})
	s, mem, clk := newTestSampler(t, src)

	clk.Add(time.Second)
	rec, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, rec.Valid)
	assert.Equal(t, r3.Vector{X: 2, Y: 0, Z: 1}, rec.Accel)
	assert.Equal(t, r3.Vector{X: 19.61, Y: 0, Z: 9.81}, rec.Velocity)

	last, ok := mem.Last()
	require.True(t, ok)
	assert.Equal(t, rec, last)
	assert.Equal(t, Stats{Records: 1}, s.Stats())
}

func TestTickReadFailureEmitsInvalidRecord(t *testing.T) {
	s, mem, _ := newTestSampler(t, brokenSource{})

	rec, err := s.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrIO))
	assert.False(t, rec.Valid)
	assert.Contains(t, rec.Error, "i2c: nack")

	assert.Equal(t, uint64(1), mem.Total())
	assert.Equal(t, Stats{Records: 1, Invalid: 1}, s.Stats())
}

func TestRunTicksUntilCanceled(t *testing.T) {
	src := imu.NewSim(imu.SimConfig{})
	s, mem, clk := newTestSampler(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		clk.Add(DefaultConfig().Interval)
		return mem.Total() >= 3
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	last, ok := s.Last()
	require.True(t, ok)
	assert.True(t, last.Valid)
	assert.Greater(t, last.Velocity.Z, 0.0)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Interval = 0
	assert.True(t, errors.HasCode(cfg.Validate(), errors.ErrInvalidInterval))

	cfg = DefaultConfig()
	cfg.GravityReference = 0
	assert.True(t, errors.HasCode(cfg.Validate(), errors.ErrInvalidConfig))
}

func TestTickBoundsStalledRead(t *testing.T) {
	clk := clock.NewMock()
	mem := records.NewMemory(4)
	p, err := integration.New(integration.DefaultConfig(), mem, clk, logger.New("integration"))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ReadTimeout = 10 * time.Millisecond
	s, err := New(cfg, stalledSource{}, p, clk, logger.New("sampler"))
	require.NoError(t, err)

	start := time.Now()
	rec, err := s.Tick(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, errors.HasCode(err, errors.ErrTimeout))
	assert.False(t, rec.Valid)
	assert.Equal(t, Stats{Records: 1, Invalid: 1}, s.Stats())
	assert.Equal(t, uint64(1), mem.Total())

	cfg.ReadTimeout = -time.Second
	assert.True(t, errors.HasCode(cfg.Validate(), errors.ErrInvalidInterval))
}
