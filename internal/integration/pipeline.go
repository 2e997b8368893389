package integration

import (
	"context"
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/logger"
	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
)

// Sample is one acceleration reading in g. A zero DT is derived from the
// wall clock since the previous step unless HasDT marks it as given.
type Sample struct {
	Accel r3.Vector
	DT    time.Duration
	HasDT bool
}

func (s Sample) explicitDT() bool {
	return s.HasDT || s.DT != 0
}

// Sink receives every emitted record in order.
type Sink interface {
	Append(ctx context.Context, r Record) error
}

// Pipeline integrates acceleration into a running velocity estimate. All
// methods are safe for concurrent use; steps are applied one at a time.
type Pipeline struct {
	cfg    Config
	sink   Sink
	clock  clock.Clock
	logger logger.Logger

	mu       sync.Mutex
	velocity r3.Vector
	nextID   uint64
	start    time.Time
	last     time.Time
}

// New creates a pipeline. sink may be nil, in which case records are only
// returned to the caller.
func New(cfg Config, sink Sink, clk clock.Clock, log logger.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}

	now := clk.Now()
	return &Pipeline{
		cfg:    cfg,
		sink:   sink,
		clock:  clk,
		logger: log,
		nextID: 1,
		start:  now,
		last:   now,
	}, nil
}

// Process applies one sample. Invalid samples still produce a record with
// Valid unset and return ErrInvalidSample; velocity is left untouched.
func (p *Pipeline) Process(ctx context.Context, s Sample) (Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, dt := p.begin(s.DT, s.explicitDT())

	if s.DT < 0 || !finite(s.Accel) {
		err := errors.New().WithData(ErrInvalidSample, struct {
			DT    time.Duration
			Accel string
		}{
			DT:    s.DT,
			Accel: s.Accel.String(),
		})
		return p.emitInvalid(ctx, rec, err)
	}

	accel := s.Accel
	p.velocity = roundVector(r3.Vector{
		X: p.velocity.X + p.contribution(accel.X, dt),
		Y: p.velocity.Y + p.contribution(accel.Y, dt),
		Z: p.velocity.Z + p.contribution(accel.Z, dt),
	}, p.cfg.RoundingDecimals)

	rec.Accel = roundVector(accel, p.cfg.RoundingDecimals)
	rec.Velocity = p.velocity
	rec.Valid = true

	return rec, p.append(ctx, rec)
}

// ProcessEncoded decodes a JSON sample and applies it. Decoding failures are
// handled like any other invalid sample.
func (p *Pipeline) ProcessEncoded(ctx context.Context, data []byte) (Record, error) {
	s, err := DecodeSample(data)
	if err != nil {
		p.mu.Lock()
		defer p.mu.Unlock()

		rec, _ := p.begin(0, false)
		return p.emitInvalid(ctx, rec, err)
	}
	return p.Process(ctx, s)
}

// Reject records a step for which no sample could be read.
func (p *Pipeline) Reject(ctx context.Context, cause error) (Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, _ := p.begin(0, false)
	rec.Velocity = p.velocity
	if cause != nil {
		rec.Error = cause.Error()
	}
	return rec, p.append(ctx, rec)
}

// Velocity returns the current estimate in m/s.
func (p *Pipeline) Velocity() r3.Vector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.velocity
}

// Reset zeroes the velocity and restarts record ids and elapsed time.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	p.velocity = r3.Vector{}
	p.nextID = 1
	p.start = now
	p.last = now
}

// begin assigns the next id and advances the step clock. Callers hold mu.
func (p *Pipeline) begin(dt time.Duration, explicit bool) (Record, time.Duration) {
	now := p.clock.Now()
	if !explicit {
		dt = now.Sub(p.last)
	}
	p.last = now

	rec := Record{
		ID:        p.nextID,
		DT:        dt.Seconds(),
		Elapsed:   now.Sub(p.start).Seconds(),
		Timestamp: now,
	}
	p.nextID++

	return rec, dt
}

func (p *Pipeline) emitInvalid(ctx context.Context, rec Record, cause error) (Record, error) {
	rec.Velocity = p.velocity
	rec.Error = cause.Error()

	p.logger.Debug().
		Uint64("id", rec.ID).
		Str("error", rec.Error).
		Msg("Invalid sample skipped")

	if err := p.append(ctx, rec); err != nil {
		return rec, err
	}
	return rec, cause
}

// contribution is the velocity change in m/s for one axis, or zero when the
// axis is below the noise gate.
func (p *Pipeline) contribution(g float64, dt time.Duration) float64 {
	if p.cfg.NoiseGateG != nil && math.Abs(g) < *p.cfg.NoiseGateG {
		return 0
	}
	return g * StandardGravity * dt.Seconds()
}

func (p *Pipeline) append(ctx context.Context, rec Record) error {
	if p.sink == nil {
		return nil
	}
	return p.sink.Append(ctx, rec)
}
