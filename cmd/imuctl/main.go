package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/imuctl/internal/calibration"
	"codeberg.org/mutker/imuctl/internal/config"
	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/imu"
	"codeberg.org/mutker/imuctl/internal/integration"
	"codeberg.org/mutker/imuctl/internal/logger"
	"codeberg.org/mutker/imuctl/internal/pid"
	"codeberg.org/mutker/imuctl/internal/profile"
	"codeberg.org/mutker/imuctl/internal/records"
	"codeberg.org/mutker/imuctl/internal/sampler"
	"github.com/benbjohnson/clock"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
)

type app struct {
	cfg    *config.Config
	device imu.Device
	name   string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel.String(), logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	a, err := initApp(cfg)
	if err != nil {
		fatal(errors.New().Wrap(errors.ErrInitApp, err), "Failed to initialize application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if cfg.Calibrate {
		err = a.calibrate(ctx)
	} else {
		err = a.record(ctx)
	}

	if cleanupErr := a.cleanup(); cleanupErr != nil {
		logError(cleanupErr, "Cleanup failed")
	}

	switch {
	case errors.HasCode(err, errors.ErrCanceled):
		logger.Info().Msg("Calibration interrupted")
	case err != nil:
		fatal(errors.New().Wrap(errors.ErrMainLoop, err), "Error in main loop")
	}
	logger.Info().Msg("Exiting...")
}

func initApp(cfg *config.Config) (*app, error) {
	errFactory := errors.New()

	devCfg := cfg.IMU()
	name := devCfg.Name()

	if err := pid.Write(cfg.RunDir, name); err != nil {
		return nil, err
	}

	device, err := imu.Open(devCfg, logger.New("imu"))
	if err != nil {
		return nil, multierr.Append(
			errFactory.Wrap(errors.ErrOpenSource, err),
			pid.Remove(cfg.RunDir, name),
		)
	}

	return &app{cfg: cfg, device: device, name: name}, nil
}

// calibrate runs the calibration engine against the device and stores the
// resulting offsets as the newest profile for it.
func (a *app) calibrate(ctx context.Context) error {
	errFactory := errors.New()

	engine, err := calibration.New(a.cfg.CalibrationConfig(), a.device, logger.New("calibration"))
	if err != nil {
		return err
	}

	logger.Info().Str("device", a.name).Msg("Calibrating, keep the device still and level")

	res, err := engine.Run(ctx)
	if err != nil {
		return errFactory.Wrap(errors.ErrCalibrate, err)
	}

	residual := res.Last
	if res.Verification != nil {
		residual = *res.Verification
	}

	store, err := profile.NewStore(a.cfg.ProfileConfig(), logger.New("profile"))
	if err != nil {
		return err
	}

	p := &profile.Profile{
		Device:     a.name,
		Offsets:    res.Offsets,
		Iterations: res.Iterations,
		Residual:   imu.Sample{Accel: residual.Accel, Gyro: residual.Gyro},
	}
	if err := store.Save(ctx, p); err != nil {
		return multierr.Append(err, store.Close())
	}

	logger.Info().
		Str("profile", p.ID.String()).
		Int("iterations", res.Iterations).
		Interface("accel_offsets", res.Offsets.Accel).
		Interface("gyro_offsets", res.Offsets.Gyro).
		Msg("Calibration saved")

	return store.Close()
}

// record applies the newest profile, if one exists, and integrates samples
// until ctx is canceled.
func (a *app) record(ctx context.Context) error {
	src, err := a.applyProfile(ctx)
	if err != nil {
		return err
	}

	var extra []records.Sink
	var memory *records.Memory
	if size := a.cfg.Records.MemorySize; size > 0 {
		memory = records.NewMemory(size)
		extra = append(extra, memory)
	}

	sink, err := records.NewService(a.cfg.RecordsConfig(), logger.New("records"), extra...)
	if err != nil {
		return err
	}

	clk := clock.New()
	pipeline, err := integration.New(a.cfg.IntegrationConfig(), sink, clk, logger.New("integration"))
	if err != nil {
		return multierr.Append(err, sink.Close())
	}

	smp, err := sampler.New(a.cfg.SamplerConfig(), src, pipeline, clk, logger.New("sampler"))
	if err != nil {
		return multierr.Append(err, sink.Close())
	}

	runErr := smp.Run(ctx)

	if memory != nil {
		if rec, ok := memory.Last(); ok {
			logger.Info().
				Uint64("records", memory.Total()).
				Float64("elapsed", rec.Elapsed).
				Interface("velocity", rec.Velocity).
				Msg("Final velocity")
		}
	}

	return multierr.Append(runErr, sink.Close())
}

func (a *app) applyProfile(ctx context.Context) (imu.Source, error) {
	store, err := profile.NewStore(a.cfg.ProfileConfig(), logger.New("profile"))
	if err != nil {
		logger.Warn().Err(err).Msg("Profile store unavailable, recording uncalibrated")
		return a.device, nil
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close profile store")
		}
	}()

	p, err := store.Latest(ctx, a.name)
	if err != nil {
		if errors.HasCode(err, profile.ErrProfileNotFound) {
			logger.Warn().Str("device", a.name).Msg("No calibration profile found, recording uncalibrated")
			return a.device, nil
		}
		return nil, err
	}

	logger.Info().
		Str("profile", p.ID.String()).
		Time("created_at", p.CreatedAt).
		Msg("Applying calibration profile")

	return imu.WithOffsets(ctx, a.device, p.Offsets)
}

func (a *app) cleanup() error {
	errFactory := errors.New()

	var err error
	if closeErr := a.device.Close(); closeErr != nil {
		err = multierr.Append(err, errFactory.Wrap(errors.ErrCloseSource, closeErr))
	}
	err = multierr.Append(err, pid.Remove(a.cfg.RunDir, a.name))

	return err
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func logError(err error, msg string) {
	var coded errors.Error
	if errors.As(err, &coded) {
		logger.ErrorWithCode(coded).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}

func fatal(err error, msg string) {
	var coded errors.Error
	if errors.As(err, &coded) {
		logger.FatalWithCode(coded).Msg(msg)
	}
	logger.Fatal().Err(err).Msg(msg)
}
