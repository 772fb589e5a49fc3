package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Postgres error codes we translate into the error taxonomy.
const (
	pqUniqueViolation      = "23505"
	pqLockNotAvailable     = "55P03"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

type Store struct {
	db                *sqlx.DB
	lockTimeoutMillis int
}

// NewStore creates a new database store. lockTimeoutMillis bounds how
// long any transaction waits on a row lock before failing with a
// retryable error.
func NewStore(databaseURL string, lockTimeoutMillis int) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, lockTimeoutMillis: lockTimeoutMillis}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// WithTx runs fn inside a transaction with a bounded lock timeout.
// If fn returns an error the transaction is rolled back and nothing
// is persisted.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return TranslateError(err)
	}
	defer tx.Rollback()

	if s.lockTimeoutMillis > 0 {
		timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeoutMillis)
		if _, err := tx.ExecContext(ctx, timeout); err != nil {
			return TranslateError(err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	return TranslateError(tx.Commit())
}

// TranslateError maps driver-level failures onto the error taxonomy.
// Lock and serialization failures become retryable Concurrency errors;
// unique violations become Conflicts.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqLockNotAvailable, pqSerializationFailure, pqDeadlockDetected:
			return apperr.Wrap(apperr.KindConcurrency, err, "database contention")
		case pqUniqueViolation:
			return apperr.Wrap(apperr.KindConflict, err, "duplicate key")
		}
	}
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// failure, used by the order-number collision retry loop.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("product not found: %d", id)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &product, nil
}

// LockProductTx acquires an exclusive row lock on a product and reads
// its current stock and status. Callers must lock distinct products in
// ascending id order to avoid deadlocks.
func (s *Store) LockProductTx(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Product, error) {
	var product models.Product
	err := tx.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("product not found: %d", id)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &product, nil
}

// UpdateProductStockTx persists a new stock quantity for a product the
// caller already holds a row lock on.
func (s *Store) UpdateProductStockTx(ctx context.Context, tx *sqlx.Tx, id int64, stockQuantity int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE products SET stock_quantity = $1, updated_at = NOW() WHERE id = $2",
		stockQuantity, id)
	return TranslateError(err)
}
