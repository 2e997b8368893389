package imu

import (
	stderrors "errors"

	"codeberg.org/mutker/imuctl/internal/errors"
)

const (
	// Initialization and Lifecycle Errors
	ErrInitFailed     = errors.ErrorCode("imu_init_failed")
	ErrDeviceNotFound = errors.ErrorCode("imu_device_not_found")
	ErrShutdownFailed = errors.ErrorCode("imu_shutdown_failed")
	ErrUnknownDevice  = errors.ErrorCode("imu_unknown_device")

	// Transfer Errors
	ErrReadFailed       = errors.ErrorCode("imu_read_failed")
	ErrSetOffsetsFailed = errors.ErrorCode("imu_set_offsets_failed")
)

// ErrExhausted is returned by sources that can deliver no further samples.
var ErrExhausted = stderrors.New("sample source exhausted")
