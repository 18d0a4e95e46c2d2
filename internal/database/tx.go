// Package database scopes SQL transactions through context.Context so that
// repositories from different packages can join the same unit of work.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
)

// Transactor runs fn as a single all-or-nothing unit. Repositories called with
// the ctx handed to fn participate in the same transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Conn returns the transaction bound to ctx, or db when there is none.
func Conn(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok && tx != nil {
		return tx
	}
	return db
}

// SQLTransactor implements Transactor on a database/sql pool.
type SQLTransactor struct {
	db *sql.DB
}

func NewSQLTransactor(db *sql.DB) *SQLTransactor {
	return &SQLTransactor{db: db}
}

// WithinTx begins a transaction, commits it when fn returns nil and rolls it
// back on error or panic. Nested calls reuse the outer transaction.
func (t *SQLTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique_violation,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// MemoryTransactor gives in-memory repositories the same all-or-nothing
// semantics: repositories record undo steps with OnRollback and the
// transactor replays them in reverse when fn fails. Transactions are
// serialized.
type MemoryTransactor struct {
	mu sync.Mutex
}

func NewMemoryTransactor() *MemoryTransactor {
	return &MemoryTransactor{}
}

type undoLog struct {
	steps []func()
}

type undoKey struct{}

func (t *MemoryTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		return fn(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	log := &undoLog{}
	defer func() {
		if p := recover(); p != nil {
			log.rollback()
			panic(p)
		}
		if err != nil {
			log.rollback()
		}
	}()

	return fn(context.WithValue(ctx, undoKey{}, log))
}

func (l *undoLog) rollback() {
	for i := len(l.steps) - 1; i >= 0; i-- {
		l.steps[i]()
	}
	l.steps = nil
}

// OnRollback registers undo for the memory transaction bound to ctx. Outside
// a transaction the call is a no-op and the change is final.
func OnRollback(ctx context.Context, undo func()) {
	if log, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		log.steps = append(log.steps, undo)
	}
}
