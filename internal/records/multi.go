package records

import (
	"context"

	"codeberg.org/mutker/imuctl/internal/integration"
	"go.uber.org/multierr"
)

type multi []Sink

// Multi fans every record out to all sinks. A failing sink does not stop
// the others; their errors are combined.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Append(ctx context.Context, rec integration.Record) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Append(ctx, rec))
	}
	return err
}

func (m multi) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}
