package imu

import (
	"context"
)

type corrected struct {
	src     Source
	offsets Offsets
}

// Corrected wraps src so every sample has offsets added in software. The
// returned source does not expose OffsetSetter.
func Corrected(src Source, offsets Offsets) Source {
	return &corrected{src: src, offsets: offsets}
}

func (c *corrected) Read(ctx context.Context) (Sample, error) {
	s, err := c.src.Read(ctx)
	if err != nil {
		return Sample{}, err
	}
	return Apply(s, c.offsets), nil
}

// Apply returns s corrected by offsets.
func Apply(s Sample, offsets Offsets) Sample {
	return Sample{
		Accel: s.Accel.Add(offsets.Accel),
		Gyro:  s.Gyro.Add(offsets.Gyro),
	}
}

// WithOffsets applies offsets through the hardware capability when src has it
// and falls back to software correction otherwise.
func WithOffsets(ctx context.Context, src Source, offsets Offsets) (Source, error) {
	if setter, ok := src.(OffsetSetter); ok {
		if err := setter.SetOffsets(ctx, offsets); err != nil {
			return nil, err
		}
		return src, nil
	}
	return Corrected(src, offsets), nil
}
