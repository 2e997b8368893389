package profile

import "codeberg.org/mutker/imuctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("profile_invalid_db_path")

	// Storage Errors
	ErrStorageAccess    = errors.ErrorCode("profile_storage_access_failed")
	ErrStorageInit      = errors.ErrorCode("profile_storage_init_failed")
	ErrStorageClose     = errors.ErrorCode("profile_storage_close_failed")
	ErrSchemaInitFailed = errors.ErrorCode("profile_schema_init_failed")

	// Lookup Errors
	ErrProfileNotFound = errors.ErrorCode("profile_not_found")
	ErrInvalidProfile  = errors.ErrorCode("profile_invalid")
)
