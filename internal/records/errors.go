package records

import "codeberg.org/mutker/imuctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("records_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("records_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("records_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("records_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("records_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed

	// Publish Errors
	ErrBrokerConnect = errors.ErrorCode("records_broker_connect_failed")
	ErrPublish       = errors.ErrorCode("records_publish_failed")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
	ErrSinkClosed       = errors.ErrorCode("records_sink_closed")
)
