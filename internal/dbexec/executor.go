// Package dbexec provides database query execution abstractions: direct
// execution against the pool and execution inside a transaction.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Runner runs statements. Both QueryExecutor and TxExecutor satisfy it, so
// code that only reads or writes does not care whether it is inside a
// transaction.
type Runner interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// QueryExecutor runs statements on the pool and starts transactions.
type QueryExecutor interface {
	Runner
	BeginTx(ctx context.Context) (TxExecutor, error)
}

// TxExecutor runs statements inside one transaction.
type TxExecutor interface {
	Runner
	Commit() error
	Rollback() error
}

// StandardExecutor executes queries directly against a database handle.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor creates an executor that runs queries directly against the database.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction with the driver's default isolation level.
func (e *StandardExecutor) BeginTx(ctx context.Context) (TxExecutor, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txExecutor{tx: tx}, nil
}

type txExecutor struct {
	tx *sql.Tx
}

func (t *txExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *txExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *txExecutor) Commit() error   { return t.tx.Commit() }
func (t *txExecutor) Rollback() error { return t.tx.Rollback() }
