package records

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/integration"
	"codeberg.org/mutker/imuctl/internal/logger"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// maxRetainedBatches bounds how many batches stay buffered while the database
// keeps rejecting writes.
const maxRetainedBatches = 4

// Repository batches records into SQLite. Every repository writes under its
// own session id so ids from separate runs never collide.
type Repository struct {
	db      *sql.DB
	logger  logger.Logger
	cfg     Config
	session string

	mu     sync.Mutex
	buffer []integration.Record
	closed bool

	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
	closeErr      error
}

func NewRepository(cfg Config, log logger.Logger) (*Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	repo := &Repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		session:       uuid.NewString(),
		buffer:        make([]integration.Record, 0, batchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}
	repo.cfg.BatchSize = batchSize

	if batchSize > 1 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Str("session", repo.session).
		Int("schema_version", SchemaVersion).
		Int("batch_size", batchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("Records repository initialized")

	return repo, nil
}

// Session identifies the rows written by this repository.
func (r *Repository) Session() string {
	return r.session
}

func (r *Repository) Append(ctx context.Context, rec integration.Record) error {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(ErrOperationTimeout, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errFactory.New(ErrSinkClosed)
	}

	r.buffer = append(r.buffer, rec)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

// Close flushes buffered records and closes the database. Safe to call more
// than once.
func (r *Repository) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.close()
	})
	return r.closeErr
}

func (r *Repository) close() error {
	errFactory := errors.New()

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}
	<-r.flushDoneChan

	// The flusher is gone; pick up anything it did not see.
	r.mu.Lock()
	flushErr := r.flush()
	r.mu.Unlock()

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	if flushErr != nil {
		return flushErr
	}

	r.logger.Info().Str("session", r.session).Msg("Records repository closed gracefully")

	return nil
}

func (r *Repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction. Callers hold mu. On failure
// the buffer is kept so the next flush retries it, minus the oldest records
// beyond maxRetainedBatches.
func (r *Repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	if err := r.write(); err != nil {
		r.trim()
		return err
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed records to database")
	r.buffer = r.buffer[:0]

	return nil
}

func (r *Repository) trim() {
	limit := r.cfg.BatchSize * maxRetainedBatches
	excess := len(r.buffer) - limit
	if excess <= 0 {
		return
	}

	r.logger.Warn().
		Int("dropped", excess).
		Uint64("oldest_kept", r.buffer[excess].ID).
		Msg("Records buffer full, dropping oldest records")

	r.buffer = append(r.buffer[:0], r.buffer[excess:]...)
}

func (r *Repository) write() error {
	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertRecordSQL)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to prepare statement")
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, rec := range r.buffer {
		var recErr any
		if rec.Error != "" {
			recErr = rec.Error
		}

		values := []interface{}{
			r.session,
			int64(rec.ID),
			rec.Timestamp.UnixNano(),
			rec.DT,
			rec.Elapsed,
			rec.Accel.X,
			rec.Accel.Y,
			rec.Accel.Z,
			rec.Velocity.X,
			rec.Velocity.Y,
			rec.Velocity.Z,
			int64(boolToInt(rec.Valid)),
			recErr,
		}

		if _, err := stmt.Exec(values...); err != nil {
			r.logger.Error().Err(err).Msg("Failed to execute insert")
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	return nil
}
