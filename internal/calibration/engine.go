package calibration

import (
	"context"
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/imu"
	"codeberg.org/mutker/imuctl/internal/logger"
	"github.com/golang/geo/r3"
)

const axisCount = 6

// Status is a snapshot of a running or finished engine.
type Status struct {
	State      State
	Offsets    imu.Offsets
	Iteration  int
	ReadyCount int
	Last       Means
}

// Result is the outcome of Run. On failure it still carries the last offsets
// for diagnostics.
type Result struct {
	State        State
	Offsets      imu.Offsets
	Iterations   int
	ReadyCount   int
	Baseline     Means
	Last         Means
	Verification *Means
}

// ConvergenceData is attached to ConvergenceFailure errors.
type ConvergenceData struct {
	Iterations int
	ReadyCount int
	Offsets    imu.Offsets
}

// Engine finds offsets that bring a device at rest to zero on every axis
// except accel z, which settles on the gravity reference.
type Engine struct {
	cfg      Config
	src      imu.Source
	averager *Averager
	logger   logger.Logger

	mu     sync.RWMutex
	status Status
}

func New(cfg Config, src imu.Source, log logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.New().WithMessage(errors.ErrInvalidArgument, "nil sample source")
	}

	return &Engine{
		cfg:      cfg,
		src:      src,
		averager: NewAverager(NewPacer(cfg.SampleInterval), cfg.ReadTimeout),
		logger:   log,
	}, nil
}

// Status returns the current calibration state. Safe to call while Run is
// in progress.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Run drives the engine from Idle to Done or Failed. An engine runs once.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	errFactory := errors.New()

	e.mu.Lock()
	if e.status.State != Idle {
		state := e.status.State
		e.mu.Unlock()
		return Result{State: state}, errFactory.WithData(ErrAlreadyStarted, state.String())
	}
	e.status.State = MeasuringBaseline
	e.mu.Unlock()

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	res, err := e.run(ctx)
	if err != nil {
		e.setState(Failed)
		res.State = Failed

		var coded errors.Error
		if errors.As(err, &coded) {
			e.logger.ErrorWithCode(coded).
				Int("iterations", res.Iterations).
				Msg("Calibration failed")
		}
		return res, err
	}

	e.setState(Done)
	res.State = Done
	return res, nil
}

func (e *Engine) run(ctx context.Context) (Result, error) {
	var res Result

	setter, hardware := e.src.(imu.OffsetSetter)
	if hardware {
		if err := setter.SetOffsets(ctx, imu.Offsets{}); err != nil {
			return res, errors.New().Wrap(ErrIO, err)
		}
	}

	e.logger.Info().
		Bool("hardware_offsets", hardware).
		Int("buffer_size", e.cfg.BufferSize).
		Int("warmup_samples", e.cfg.WarmupSamples).
		Msg("Reading sensors for first time...")

	baseline, err := e.averager.ComputeMeans(ctx, e.src, e.cfg.WarmupSamples, e.cfg.BufferSize)
	if err != nil {
		return res, err
	}
	res.Baseline = baseline
	res.Last = baseline

	offsets := initialOffsets(baseline, e.cfg.GravityReference)
	e.update(func(s *Status) {
		s.State = Converging
		s.Offsets = offsets
		s.Last = baseline
	})
	res.Offsets = offsets

	if err := e.settle(ctx); err != nil {
		return res, err
	}

	e.logger.Info().Msg("Calculating offsets...")

	for iteration := 1; iteration <= e.cfg.MaxIterations; iteration++ {
		means, err := e.measure(ctx, offsets)
		if err != nil {
			return res, err
		}

		next, ready := feedback(means, offsets, e.cfg)

		res.Iterations = iteration
		res.ReadyCount = ready
		res.Last = means
		e.update(func(s *Status) {
			s.Iteration = iteration
			s.ReadyCount = ready
			s.Last = means
			s.Offsets = next
		})

		e.logger.Debug().
			Int("iteration", iteration).
			Int("ready", ready).
			Interface("mean_accel", means.Accel).
			Interface("mean_gyro", means.Gyro).
			Interface("offsets_accel", next.Accel).
			Interface("offsets_gyro", next.Gyro).
			Msg("Calibration iteration")

		offsets = next
		res.Offsets = offsets

		if ready == axisCount {
			e.logger.Info().
				Int("iterations", iteration).
				Interface("offsets_accel", offsets.Accel).
				Interface("offsets_gyro", offsets.Gyro).
				Msg("Calibration converged")
			return e.verify(ctx, res)
		}
	}

	return res, errors.New().WithData(ErrConvergenceFailure, ConvergenceData{
		Iterations: res.Iterations,
		ReadyCount: res.ReadyCount,
		Offsets:    offsets,
	})
}

// measure applies offsets the way the source supports and averages a window.
func (e *Engine) measure(ctx context.Context, offsets imu.Offsets) (Means, error) {
	src, err := imu.WithOffsets(ctx, e.src, offsets)
	if err != nil {
		return Means{}, errors.New().Wrap(ErrIO, err)
	}
	return e.averager.ComputeMeans(ctx, src, e.cfg.WarmupSamples, e.cfg.BufferSize)
}

func (e *Engine) verify(ctx context.Context, res Result) (Result, error) {
	if !e.cfg.Verify {
		return res, nil
	}
	if err := e.settle(ctx); err != nil {
		return res, err
	}

	means, err := e.measure(ctx, res.Offsets)
	if err != nil {
		return res, err
	}
	res.Verification = &means

	e.logger.Info().
		Interface("mean_accel", means.Accel).
		Interface("mean_gyro", means.Gyro).
		Float64("gravity_reference", e.cfg.GravityReference).
		Msg("Sensor readings with offsets")

	return res, nil
}

func (e *Engine) settle(ctx context.Context) error {
	if e.cfg.SettleDelay <= 0 {
		return nil
	}

	timer := time.NewTimer(e.cfg.SettleDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return contextError(ctx, ctx.Err(), 0, 0)
	case <-timer.C:
		return nil
	}
}

func (e *Engine) setState(state State) {
	e.update(func(s *Status) { s.State = state })
}

func (e *Engine) update(fn func(*Status)) {
	e.mu.Lock()
	fn(&e.status)
	e.mu.Unlock()
}

// initialOffsets is the closed-form first estimate from the baseline means.
func initialOffsets(m Means, gravity float64) imu.Offsets {
	return imu.Offsets{
		Accel: r3.Vector{
			X: -m.Accel.X / accelInitialDivisor,
			Y: -m.Accel.Y / accelInitialDivisor,
			Z: (gravity - m.Accel.Z) / accelInitialDivisor,
		},
		Gyro: r3.Vector{
			X: -m.Gyro.X / gyroInitialDivisor,
			Y: -m.Gyro.Y / gyroInitialDivisor,
			Z: -m.Gyro.Z / gyroInitialDivisor,
		},
	}
}

// feedback checks every axis against its deadzone and nudges the offsets of
// failing axes proportionally. The gyro divisor is deadzone+1 so gyro axes
// converge more slowly than accel axes.
func feedback(m Means, off imu.Offsets, cfg Config) (imu.Offsets, int) {
	ready := 0
	accelDZ := cfg.AccelDeadzone
	gyroDZ := cfg.GyroDeadzone
	g := cfg.GravityReference

	if math.Abs(m.Accel.X) <= accelDZ {
		ready++
	} else {
		off.Accel.X -= m.Accel.X / accelDZ
	}

	if math.Abs(m.Accel.Y) <= accelDZ {
		ready++
	} else {
		off.Accel.Y -= m.Accel.Y / accelDZ
	}

	if math.Abs(g-m.Accel.Z) <= accelDZ {
		ready++
	} else {
		off.Accel.Z += (g - m.Accel.Z) / accelDZ
	}

	if math.Abs(m.Gyro.X) <= gyroDZ {
		ready++
	} else {
		off.Gyro.X -= m.Gyro.X / (gyroDZ + 1)
	}

	if math.Abs(m.Gyro.Y) <= gyroDZ {
		ready++
	} else {
		off.Gyro.Y -= m.Gyro.Y / (gyroDZ + 1)
	}

	if math.Abs(m.Gyro.Z) <= gyroDZ {
		ready++
	} else {
		off.Gyro.Z -= m.Gyro.Z / (gyroDZ + 1)
	}

	return off, ready
}
