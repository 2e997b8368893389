package integration

import "codeberg.org/mutker/imuctl/internal/errors"

const (
	ErrInvalidSample = errors.ErrInvalidSample
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrIO            = errors.ErrIO
)
