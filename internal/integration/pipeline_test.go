package integration

import (
	"context"
	stderrors "errors"
	"math"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/logger"
	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (s *captureSink) Append(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return s.err
}

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *captureSink, *clock.Mock) {
	t.Helper()

	sink := &captureSink{}
	clk := clock.NewMock()
	p, err := New(cfg, sink, clk, logger.New("integration"))
	require.NoError(t, err)

	return p, sink, clk
}

func splat(v float64) r3.Vector {
	return r3.Vector{X: v, Y: v, Z: v}
}

func TestProcessIntegratesAboveGate(t *testing.T) {
	p, sink, _ := newTestPipeline(t, DefaultConfig())
	ctx := context.Background()

	rec, err := p.Process(ctx, Sample{Accel: splat(2), DT: time.Second})
	require.NoError(t, err)
	assert.True(t, rec.Valid)
	assert.Equal(t, splat(19.61), rec.Velocity)
	assert.Equal(t, splat(2), rec.Accel)
	assert.Equal(t, 1.0, rec.DT)
	assert.Equal(t, uint64(1), rec.ID)

	// the rounded value is the new state
	rec, err = p.Process(ctx, Sample{Accel: splat(2), DT: time.Second})
	require.NoError(t, err)
	assert.Equal(t, splat(39.22), rec.Velocity)
	assert.Equal(t, splat(39.22), p.Velocity())
	assert.Equal(t, uint64(2), rec.ID)

	require.Len(t, sink.records, 2)
	assert.Equal(t, rec, sink.records[1])
}

func TestProcessGatesBelowThreshold(t *testing.T) {
	p, _, _ := newTestPipeline(t, DefaultConfig())

	rec, err := p.Process(context.Background(), Sample{Accel: splat(0.5), DT: time.Second})
	require.NoError(t, err)
	assert.True(t, rec.Valid)
	assert.Equal(t, r3.Vector{}, rec.Velocity)
	assert.Equal(t, splat(0.5), rec.Accel)
}

func TestProcessGatesPerAxis(t *testing.T) {
	p, _, _ := newTestPipeline(t, DefaultConfig())

	// z at exactly 1 g is not below the gate
	rec, err := p.Process(context.Background(), Sample{
		Accel: r3.Vector{X: -3, Y: 0.99, Z: 1},
		DT:    time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, r3.Vector{X: -29.42, Y: 0, Z: 9.81}, rec.Velocity)
}

func TestProcessWithoutGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoiseGateG = nil
	p, _, _ := newTestPipeline(t, cfg)

	rec, err := p.Process(context.Background(), Sample{Accel: splat(0.5), DT: time.Second})
	require.NoError(t, err)
	assert.Equal(t, splat(4.9), rec.Velocity)
}

func TestProcessCustomGateAndRounding(t *testing.T) {
	cfg := Config{NoiseGateG: Gate(0.1), RoundingDecimals: 4}
	p, _, _ := newTestPipeline(t, cfg)

	rec, err := p.Process(context.Background(), Sample{Accel: r3.Vector{X: 0.5, Y: 0.05}, DT: time.Second})
	require.NoError(t, err)
	assert.Equal(t, r3.Vector{X: 4.9033}, rec.Velocity)
}

func TestProcessWallClockDelta(t *testing.T) {
	p, _, clk := newTestPipeline(t, DefaultConfig())
	ctx := context.Background()

	clk.Add(10 * time.Millisecond)
	rec, err := p.Process(ctx, Sample{Accel: splat(2)})
	require.NoError(t, err)
	assert.Equal(t, 0.01, rec.DT)
	assert.Equal(t, 0.01, rec.Elapsed)
	assert.Equal(t, splat(0.2), rec.Velocity)
	assert.Equal(t, clk.Now(), rec.Timestamp)

	clk.Add(500 * time.Millisecond)
	rec, err = p.Process(ctx, Sample{Accel: splat(0)})
	require.NoError(t, err)
	assert.Equal(t, 0.5, rec.DT)
	assert.Equal(t, 0.51, rec.Elapsed)
}

func TestProcessInvalidSample(t *testing.T) {
	p, sink, _ := newTestPipeline(t, DefaultConfig())
	ctx := context.Background()

	_, err := p.Process(ctx, Sample{Accel: splat(2), DT: time.Second})
	require.NoError(t, err)

	for name, s := range map[string]Sample{
		"nan":      {Accel: r3.Vector{X: math.NaN(), Y: 2, Z: 2}, DT: time.Second},
		"inf":      {Accel: r3.Vector{X: 2, Y: math.Inf(-1), Z: 2}, DT: time.Second},
		"negative": {Accel: splat(2), DT: -time.Second},
	} {
		rec, err := p.Process(ctx, s)
		require.Error(t, err, name)
		assert.True(t, errors.HasCode(err, ErrInvalidSample), name)
		assert.False(t, rec.Valid, name)
		assert.NotEmpty(t, rec.Error, name)
		assert.Equal(t, splat(19.61), rec.Velocity, name)
		assert.Equal(t, splat(19.61), p.Velocity(), name)
	}

	// invalid records are still emitted
	assert.Len(t, sink.records, 4)
}

func TestProcessEncoded(t *testing.T) {
	p, _, _ := newTestPipeline(t, DefaultConfig())
	ctx := context.Background()

	rec, err := p.ProcessEncoded(ctx, []byte(`{"accel":{"x":2,"y":2,"z":2},"dt_us":1000000}`))
	require.NoError(t, err)
	assert.True(t, rec.Valid)
	assert.Equal(t, splat(19.61), rec.Velocity)

	for name, data := range map[string]string{
		"nan string": `{"accel":{"x":"NaN","y":2,"z":2},"dt_us":1000000}`,
		"missing x":  `{"accel":{"y":2,"z":2},"dt_us":1000000}`,
		"null z":     `{"accel":{"x":2,"y":2,"z":null},"dt_us":1000000}`,
		"no accel":   `{"dt_us":1000000}`,
		"garbage":    `not json`,
	} {
		rec, err := p.ProcessEncoded(ctx, []byte(data))
		require.Error(t, err, name)
		assert.True(t, errors.HasCode(err, ErrInvalidSample), name)
		assert.False(t, rec.Valid, name)
		assert.Equal(t, splat(19.61), p.Velocity(), name)
	}
}

func TestReject(t *testing.T) {
	p, sink, _ := newTestPipeline(t, DefaultConfig())
	ctx := context.Background()

	_, err := p.Process(ctx, Sample{Accel: splat(2), DT: time.Second})
	require.NoError(t, err)

	rec, err := p.Reject(ctx, stderrors.New("i2c: nack"))
	require.NoError(t, err)
	assert.False(t, rec.Valid)
	assert.Equal(t, "i2c: nack", rec.Error)
	assert.Equal(t, uint64(2), rec.ID)
	assert.Equal(t, splat(19.61), rec.Velocity)
	assert.Len(t, sink.records, 2)
}

func TestSinkErrorIsReturned(t *testing.T) {
	p, sink, _ := newTestPipeline(t, DefaultConfig())
	sink.err = errors.New().New(errors.ErrIO)

	rec, err := p.Process(context.Background(), Sample{Accel: splat(2), DT: time.Second})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrIO))
	assert.True(t, rec.Valid)
	assert.Equal(t, splat(19.61), p.Velocity())
}

func TestReset(t *testing.T) {
	p, _, clk := newTestPipeline(t, DefaultConfig())
	ctx := context.Background()

	_, err := p.Process(ctx, Sample{Accel: splat(2), DT: time.Second})
	require.NoError(t, err)

	clk.Add(time.Second)
	p.Reset()
	assert.Equal(t, r3.Vector{}, p.Velocity())

	rec, err := p.Process(ctx, Sample{Accel: splat(0)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.ID)
	assert.Equal(t, 0.0, rec.Elapsed)
}

func TestProcessConcurrent(t *testing.T) {
	p, sink, _ := newTestPipeline(t, DefaultConfig())
	ctx := context.Background()

	const producers = 100
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Process(ctx, Sample{Accel: splat(2), DT: time.Millisecond})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// every step adds 0.0196 which rounds up to one hundredth
	assert.InDelta(t, 2.0, p.Velocity().X, 1e-9)

	seen := make(map[uint64]bool)
	for _, r := range sink.records {
		seen[r.ID] = true
	}
	assert.Len(t, seen, producers)
}

func TestNilSink(t *testing.T) {
	p, err := New(DefaultConfig(), nil, clock.NewMock(), logger.New("integration"))
	require.NoError(t, err)

	rec, err := p.Process(context.Background(), Sample{Accel: splat(2), DT: time.Second})
	require.NoError(t, err)
	assert.Equal(t, splat(19.61), rec.Velocity)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{}.Validate())

	for name, cfg := range map[string]Config{
		"negative gate":     {NoiseGateG: Gate(-1)},
		"negative decimals": {RoundingDecimals: -1},
		"too many decimals": {RoundingDecimals: 16},
	} {
		err := cfg.Validate()
		assert.True(t, errors.HasCode(err, ErrInvalidConfig), name)
	}

	_, err := New(Config{RoundingDecimals: 99}, nil, nil, logger.New("integration"))
	assert.True(t, errors.HasCode(err, ErrInvalidConfig))
}

func TestProcessExplicitZeroDelta(t *testing.T) {
	p, _, clk := newTestPipeline(t, DefaultConfig())
	ctx := context.Background()

	clk.Add(time.Second)
	rec, err := p.ProcessEncoded(ctx, []byte(`{"accel":{"x":2,"y":2,"z":2},"dt_us":0}`))
	require.NoError(t, err)
	assert.True(t, rec.Valid)
	assert.Equal(t, 0.0, rec.DT)
	assert.Equal(t, r3.Vector{}, rec.Velocity)

	clk.Add(time.Second)
	rec, err = p.Process(ctx, Sample{Accel: splat(2), HasDT: true})
	require.NoError(t, err)
	assert.Equal(t, 0.0, rec.DT)
	assert.Equal(t, r3.Vector{}, p.Velocity())

	// without dt_us the wall clock still applies
	clk.Add(time.Second)
	rec, err = p.ProcessEncoded(ctx, []byte(`{"accel":{"x":2,"y":2,"z":2}}`))
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.DT)
	assert.Equal(t, splat(19.61), rec.Velocity)
}

func TestDecodeSampleDelta(t *testing.T) {
	s, err := DecodeSample([]byte(`{"accel":{"x":1,"y":0,"z":0},"dt_us":0}`))
	require.NoError(t, err)
	assert.True(t, s.HasDT)
	assert.Equal(t, time.Duration(0), s.DT)

	s, err = DecodeSample([]byte(`{"accel":{"x":1,"y":0,"z":0},"dt_us":2500}`))
	require.NoError(t, err)
	assert.True(t, s.HasDT)
	assert.Equal(t, 2500*time.Microsecond, s.DT)

	s, err = DecodeSample([]byte(`{"accel":{"x":1,"y":0,"z":0}}`))
	require.NoError(t, err)
	assert.False(t, s.HasDT)

	data, err := EncodeSample(Sample{Accel: splat(1), HasDT: true})
	require.NoError(t, err)
	s, err = DecodeSample(data)
	require.NoError(t, err)
	assert.True(t, s.HasDT)
	assert.Equal(t, time.Duration(0), s.DT)
}

func TestRoundIdempotent(t *testing.T) {
	for k := -2000; k <= 2000; k++ {
		v := float64(k) / 100
		assert.Equal(t, v, Round(v, 2), "k=%d", k)
	}

	for _, x := range []float64{0.125, -0.125, 2.675, 1.005, -1.005, 19.6133, -29.41995, 39.215, 1e-9} {
		once := Round(x, 2)
		assert.Equal(t, once, Round(once, 2), "x=%v", x)
	}

	// halves round away from zero
	assert.Equal(t, 0.13, Round(0.125, 2))
	assert.Equal(t, -0.13, Round(-0.125, 2))

	for _, x := range []float64{0.123456789012345678, -3.14159265358979, 1e-16} {
		once := Round(x, maxRoundingDecimals)
		assert.Equal(t, once, Round(once, maxRoundingDecimals), "x=%v", x)
	}

	// too large to scale
	assert.Equal(t, 1e300, Round(1e300, maxRoundingDecimals))
}
