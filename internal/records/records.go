package records

import (
	"context"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/integration"
	"codeberg.org/mutker/imuctl/internal/logger"
	"go.uber.org/multierr"
)

// No-op implementation
type noopSink struct{}

// NewService builds the sinks enabled in cfg plus any extra ones. With
// nothing enabled it returns a no-op sink.
func NewService(cfg Config, log logger.Logger, extra ...Sink) (Sink, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	sinks := append([]Sink(nil), extra...)

	if cfg.Enabled {
		repo, err := NewRepository(cfg, log)
		if err != nil {
			return nil, multierr.Append(err, closeAll(sinks))
		}
		sinks = append(sinks, repo)
	}

	if cfg.MQTT.Enabled {
		pub, err := NewMQTT(cfg.MQTT, log)
		if err != nil {
			return nil, multierr.Append(err, closeAll(sinks))
		}
		sinks = append(sinks, pub)
	}

	switch len(sinks) {
	case 0:
		log.Debug().Msg("Record storage disabled, using no-op sink")
		return noopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return Multi(sinks...), nil
	}
}

func closeAll(sinks []Sink) error {
	return Multi(sinks...).Close()
}

func (noopSink) Append(_ context.Context, _ integration.Record) error {
	return nil
}

func (noopSink) Close() error {
	return nil
}
