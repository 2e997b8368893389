package calibration

import (
	"context"
	"io"
	"math"
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/imu"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"
)

// Means is the per-axis average of one window.
type Means struct {
	Accel       r3.Vector
	Gyro        r3.Vector
	AccelStdDev r3.Vector
	GyroStdDev  r3.Vector
	Samples     int
}

// Averager reads paced windows of samples and reduces them to Means.
type Averager struct {
	pacer       *Pacer
	readTimeout time.Duration
}

func NewAverager(pacer *Pacer, readTimeout time.Duration) *Averager {
	return &Averager{pacer: pacer, readTimeout: readTimeout}
}

// ComputeMeans reads warmup+window samples from src, discards the first
// warmup, and averages the rest. No partial result is returned on error.
func (a *Averager) ComputeMeans(ctx context.Context, src imu.Source, warmup, window int) (Means, error) {
	errFactory := errors.New()

	if warmup < 0 || window < 1 {
		return Means{}, errFactory.WithData(ErrInvalidWindow, struct {
			Warmup int
			Window int
		}{
			Warmup: warmup,
			Window: window,
		})
	}

	var axes [6][]float64
	for i := range axes {
		axes[i] = make([]float64, 0, window)
	}

	total := warmup + window
	for i := 0; i < total; i++ {
		if err := a.pacer.Wait(ctx); err != nil {
			return Means{}, contextError(ctx, err, i, total)
		}

		s, err := a.read(ctx, src)
		if err != nil {
			return Means{}, readError(ctx, err, i, total)
		}

		if i < warmup {
			continue
		}

		if !finite(s.Accel) || !finite(s.Gyro) {
			return Means{}, errFactory.WithData(ErrIO, struct {
				Phase  string
				Sample int
			}{
				Phase:  "non_finite_reading",
				Sample: i,
			})
		}

		axes[0] = append(axes[0], s.Accel.X)
		axes[1] = append(axes[1], s.Accel.Y)
		axes[2] = append(axes[2], s.Accel.Z)
		axes[3] = append(axes[3], s.Gyro.X)
		axes[4] = append(axes[4], s.Gyro.Y)
		axes[5] = append(axes[5], s.Gyro.Z)
	}

	var mean, std [6]float64
	for i, values := range axes {
		mean[i], std[i] = meanStdDev(values)
	}

	return Means{
		Accel:       r3.Vector{X: mean[0], Y: mean[1], Z: mean[2]},
		Gyro:        r3.Vector{X: mean[3], Y: mean[4], Z: mean[5]},
		AccelStdDev: r3.Vector{X: std[0], Y: std[1], Z: std[2]},
		GyroStdDev:  r3.Vector{X: std[3], Y: std[4], Z: std[5]},
		Samples:     window,
	}, nil
}

func (a *Averager) read(ctx context.Context, src imu.Source) (imu.Sample, error) {
	if a.readTimeout <= 0 {
		return src.Read(ctx)
	}
	readCtx, cancel := context.WithTimeout(ctx, a.readTimeout)
	defer cancel()
	return src.Read(readCtx)
}

func meanStdDev(values []float64) (float64, float64) {
	if len(values) < 2 {
		return stat.Mean(values, nil), 0
	}
	return stat.MeanStdDev(values, nil)
}

func finite(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

type progress struct {
	Sample int
	Total  int
	Error  string
}

func readError(ctx context.Context, err error, i, total int) error {
	errFactory := errors.New()
	data := progress{Sample: i, Total: total, Error: err.Error()}

	switch {
	case errors.Is(err, imu.ErrExhausted), errors.Is(err, io.EOF):
		return errFactory.WithData(ErrTimeout, data)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return contextError(ctx, err, i, total)
	default:
		return errFactory.Wrap(ErrIO, err).WithData(data)
	}
}

// contextError separates caller cancellation from deadlines, including the
// per-read timeout and the pacer refusing to wait past the deadline.
func contextError(ctx context.Context, err error, i, total int) error {
	errFactory := errors.New()
	data := progress{Sample: i, Total: total, Error: err.Error()}

	if errors.Is(ctx.Err(), context.Canceled) {
		return errFactory.Wrap(ErrCanceled, err).WithData(data)
	}
	return errFactory.Wrap(ErrTimeout, err).WithData(data)
}
