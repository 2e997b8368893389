package profile

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/imu"
	"codeberg.org/mutker/imuctl/internal/logger"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"
)

type sqliteRepository struct {
	db     *sql.DB
	mu     sync.Mutex
	logger logger.Logger
}

func NewStore(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debug().Str("path", cfg.DBPath).Msg("Initializing profile store")

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	return &sqliteRepository{
		db:     db,
		logger: log,
	}, nil
}

// Save stores p, assigning an ID and creation time when they are unset.
func (r *sqliteRepository) Save(ctx context.Context, p *Profile) error {
	errFactory := errors.New()

	if p == nil || p.Device == "" {
		return errFactory.New(ErrInvalidProfile)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO profiles (
            id, device, created_at, iterations,
            accel_offset_x, accel_offset_y, accel_offset_z,
            gyro_offset_x, gyro_offset_y, gyro_offset_z,
            residual_accel_x, residual_accel_y, residual_accel_z,
            residual_gyro_x, residual_gyro_y, residual_gyro_z
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		p.ID.String(),
		p.Device,
		p.CreatedAt.UnixNano(),
		p.Iterations,
		p.Offsets.Accel.X, p.Offsets.Accel.Y, p.Offsets.Accel.Z,
		p.Offsets.Gyro.X, p.Offsets.Gyro.Y, p.Offsets.Gyro.Z,
		p.Residual.Accel.X, p.Residual.Accel.Y, p.Residual.Accel.Z,
		p.Residual.Gyro.X, p.Residual.Gyro.Y, p.Residual.Gyro.Z,
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	r.logger.Debug().
		Str("id", p.ID.String()).
		Str("device", p.Device).
		Msg("Calibration profile saved")

	return nil
}

// Latest returns the newest profile for device.
func (r *sqliteRepository) Latest(ctx context.Context, device string) (*Profile, error) {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		p                 Profile
		id                string
		createdAt         int64
		accelOff, gyroOff r3.Vector
		resAccel, resGyro r3.Vector
	)
	err := r.db.QueryRowContext(ctx, `
        SELECT id, device, created_at, iterations,
            accel_offset_x, accel_offset_y, accel_offset_z,
            gyro_offset_x, gyro_offset_y, gyro_offset_z,
            residual_accel_x, residual_accel_y, residual_accel_z,
            residual_gyro_x, residual_gyro_y, residual_gyro_z
        FROM profiles
        WHERE device = ?
        ORDER BY created_at DESC, rowid DESC
        LIMIT 1
    `, device).Scan(
		&id, &p.Device, &createdAt, &p.Iterations,
		&accelOff.X, &accelOff.Y, &accelOff.Z,
		&gyroOff.X, &gyroOff.Y, &gyroOff.Z,
		&resAccel.X, &resAccel.Y, &resAccel.Z,
		&resGyro.X, &resGyro.Y, &resGyro.Z,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errFactory.WithData(ErrProfileNotFound, struct {
			Device string
		}{
			Device: device,
		})
	}
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	p.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	p.CreatedAt = time.Unix(0, createdAt)
	p.Offsets = imu.Offsets{Accel: accelOff, Gyro: gyroOff}
	p.Residual = imu.Sample{Accel: resAccel, Gyro: resGyro}

	return &p, nil
}

func (r *sqliteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}
