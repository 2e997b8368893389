package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrNotImplemented  ErrorCode = "not_implemented"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Resource errors
	ErrResourceBusy      ErrorCode = "resource_busy"
	ErrResourceNotFound  ErrorCode = "resource_not_found"
	ErrResourceExhausted ErrorCode = "resource_exhausted"
	ErrAlreadyRunning    ErrorCode = "already_running"

	// Sensor errors
	ErrIO                 ErrorCode = "io_error"
	ErrConvergenceFailure ErrorCode = "convergence_failure"
	ErrInvalidSample      ErrorCode = "invalid_sample"

	// Application errors
	ErrInitApp     ErrorCode = "init_app_failed"
	ErrMainLoop    ErrorCode = "main_loop_failed"
	ErrCalibrate   ErrorCode = "calibration_failed"
	ErrOpenSource  ErrorCode = "open_source_failed"
	ErrCloseSource ErrorCode = "close_source_failed"

	// Operation errors
	ErrOperationFailed  ErrorCode = "operation_failed"
	ErrTimeout          ErrorCode = "operation_timeout"
	ErrCanceled         ErrorCode = "operation_canceled"
	ErrInvalidOperation ErrorCode = "invalid_operation"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:           "Internal error occurred",
	ErrInvalidArgument:    "Invalid argument provided",
	ErrNotImplemented:     "Operation not implemented",
	ErrUnavailable:        "Service unavailable",
	ErrInvalidConfig:      "Invalid configuration",
	ErrMissingConfig:      "Missing configuration",
	ErrBindFlags:          "Failed to bind flags",
	ErrReadConfig:         "Failed to read configuration",
	ErrInvalidLogLevel:    "Invalid log level",
	ErrInitFailed:         "Initialization failed",
	ErrShutdownFailed:     "Shutdown failed",
	ErrResourceBusy:       "Resource is busy",
	ErrResourceNotFound:   "Resource not found",
	ErrResourceExhausted:  "Resource exhausted",
	ErrAlreadyRunning:     "Another instance is already using the device",
	ErrIO:                 "Sensor read failed",
	ErrConvergenceFailure: "Calibration did not converge",
	ErrInvalidSample:      "Invalid sample",
	ErrOperationFailed:    "Operation failed",
	ErrTimeout:            "Operation timed out",
	ErrCanceled:           "Operation canceled",
	ErrInvalidOperation:   "Invalid operation",
	ErrInvalidInterval:    "Invalid interval value",
	ErrInitApp:            "Failed to initialize application",
	ErrMainLoop:           "Error in main loop",
	ErrCalibrate:          "Calibration failed",
	ErrOpenSource:         "Failed to open sample source",
	ErrCloseSource:        "Failed to close sample source",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
