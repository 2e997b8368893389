package profile

import (
	"database/sql"

	"codeberg.org/mutker/imuctl/internal/errors"
)

const createTableSQL = `
        CREATE TABLE IF NOT EXISTS profiles (
            id               TEXT PRIMARY KEY,
            device           TEXT NOT NULL,
            created_at       INTEGER NOT NULL,
            iterations       INTEGER NOT NULL,
            accel_offset_x   REAL NOT NULL,
            accel_offset_y   REAL NOT NULL,
            accel_offset_z   REAL NOT NULL,
            gyro_offset_x    REAL NOT NULL,
            gyro_offset_y    REAL NOT NULL,
            gyro_offset_z    REAL NOT NULL,
            residual_accel_x REAL NOT NULL,
            residual_accel_y REAL NOT NULL,
            residual_accel_z REAL NOT NULL,
            residual_gyro_x  REAL NOT NULL,
            residual_gyro_y  REAL NOT NULL,
            residual_gyro_z  REAL NOT NULL
        );
        CREATE INDEX IF NOT EXISTS profiles_device_created
            ON profiles (device, created_at);`

// InitSchema initializes the database schema for calibration profiles
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(createTableSQL); err != nil {
		return errors.New().Wrap(ErrSchemaInitFailed, err)
	}
	return nil
}
