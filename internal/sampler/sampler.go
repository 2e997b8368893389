package sampler

import (
	"context"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/imu"
	"codeberg.org/mutker/imuctl/internal/integration"
	"codeberg.org/mutker/imuctl/internal/logger"
	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
)

// Stats counts the steps taken so far.
type Stats struct {
	Records uint64
	Invalid uint64
}

// Sampler feeds a pipeline from a sample source on a fixed schedule.
type Sampler struct {
	cfg      Config
	src      imu.Source
	pipeline *integration.Pipeline
	clock    clock.Clock
	logger   logger.Logger

	records atomic.Uint64
	invalid atomic.Uint64
	last    atomic.Pointer[integration.Record]
}

func New(cfg Config, src imu.Source, pipeline *integration.Pipeline, clk clock.Clock, log logger.Logger) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Sampler{
		cfg:      cfg,
		src:      src,
		pipeline: pipeline,
		clock:    clk,
		logger:   log,
	}, nil
}

// Tick reads one sample and integrates it. A failed or timed out read still
// emits an invalid record.
func (s *Sampler) Tick(ctx context.Context) (integration.Record, error) {
	raw, err := s.read(ctx)
	if err != nil {
		code := errors.ErrIO
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			code = errors.ErrTimeout
		}
		readErr := errors.New().Wrap(code, err)
		rec, sinkErr := s.pipeline.Reject(ctx, readErr)
		s.track(rec)
		return rec, multierr.Append(readErr, sinkErr)
	}

	rec, err := s.pipeline.Process(ctx, integration.Sample{
		Accel: imu.ToG(raw.Accel, s.cfg.GravityReference),
	})
	s.track(rec)
	return rec, err
}

func (s *Sampler) read(ctx context.Context) (imu.Sample, error) {
	if s.cfg.ReadTimeout <= 0 {
		return s.src.Read(ctx)
	}
	readCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()
	return s.src.Read(readCtx)
}

// Run ticks until ctx is done.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.cfg.Interval)
	defer ticker.Stop()

	var status <-chan time.Time
	if s.cfg.StatusInterval > 0 {
		statusTicker := s.clock.Ticker(s.cfg.StatusInterval)
		defer statusTicker.Stop()
		status = statusTicker.C
	}

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Msg("Recording started")

	for {
		select {
		case <-ctx.Done():
			s.logStatus("Recording stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.logTickError(err)
			}
		case <-status:
			s.logStatus("Recording")
		}
	}
}

func (s *Sampler) Stats() Stats {
	return Stats{
		Records: s.records.Load(),
		Invalid: s.invalid.Load(),
	}
}

// Last returns the most recent record, if any.
func (s *Sampler) Last() (integration.Record, bool) {
	rec := s.last.Load()
	if rec == nil {
		return integration.Record{}, false
	}
	return *rec, true
}

func (s *Sampler) track(rec integration.Record) {
	s.records.Add(1)
	if !rec.Valid {
		s.invalid.Add(1)
	}
	s.last.Store(&rec)
}

func (s *Sampler) logTickError(err error) {
	if errors.HasCode(err, integration.ErrInvalidSample) {
		s.logger.Debug().Err(err).Msg("Sample skipped")
		return
	}

	var coded errors.Error
	if errors.As(err, &coded) {
		s.logger.ErrorWithCode(coded).Msg("Sampling step failed")
		return
	}
	s.logger.Error().Err(err).Msg("Sampling step failed")
}

func (s *Sampler) logStatus(msg string) {
	stats := s.Stats()
	event := s.logger.Info().
		Uint64("records", stats.Records).
		Uint64("invalid", stats.Invalid)

	if rec, ok := s.Last(); ok {
		event = event.
			Float64("velocity_x", rec.Velocity.X).
			Float64("velocity_y", rec.Velocity.Y).
			Float64("velocity_z", rec.Velocity.Z)
	}

	event.Msg(msg)
}
