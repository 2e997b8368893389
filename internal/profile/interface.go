package profile

import (
	"context"
	"time"

	"codeberg.org/mutker/imuctl/internal/imu"
	"github.com/google/uuid"
)

// Store persists calibration results per device.
type Store interface {
	Save(ctx context.Context, p *Profile) error
	Latest(ctx context.Context, device string) (*Profile, error)
	Close() error
}

// Profile is one successful calibration.
type Profile struct {
	ID         uuid.UUID
	Device     string
	Offsets    imu.Offsets
	Iterations int
	// Residual holds the mean readings measured with Offsets applied.
	Residual  imu.Sample
	CreatedAt time.Time
}
