package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/booking-engine/pkg/errors"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

// querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type txKey struct{}

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// conn returns the transaction bound to ctx, if any, else the pool.
func (r *BaseRepository) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return r.db
}

// WithinTx runs fn inside one transaction. Nested calls join the outer one.
func (r *BaseRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// isSlotConflict recognizes the partial unique index on active slots.
func isSlotConflict(err error) bool {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation || pqErr.Code == pgExclusionViolation
	}
	return false
}

func isNotFound(err error) bool {
	return stderrors.Is(err, sql.ErrNoRows)
}

// mapError translates driver errors into application errors.
func mapError(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return errors.NotFound(resource, err)
	case isSlotConflict(err):
		return errors.Conflict("slot already booked", err)
	}
	return err
}

func notFound(resource string) error {
	return errors.NotFound(resource, nil)
}
