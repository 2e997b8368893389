package records

import (
	"context"

	"codeberg.org/mutker/imuctl/internal/integration"
)

// Sink stores or forwards integration records.
type Sink interface {
	Append(ctx context.Context, r integration.Record) error
	Close() error
}
