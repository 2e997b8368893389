package calibration

import "codeberg.org/mutker/imuctl/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig

	// Averaging Errors
	ErrIO            = errors.ErrIO
	ErrTimeout       = errors.ErrTimeout
	ErrCanceled      = errors.ErrCanceled
	ErrInvalidWindow = errors.ErrInvalidArgument

	// Engine Errors
	ErrConvergenceFailure = errors.ErrConvergenceFailure
	ErrAlreadyStarted     = errors.ErrInvalidOperation
)
