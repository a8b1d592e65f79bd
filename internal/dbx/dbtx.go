// Package dbx holds the small database plumbing the vault repositories
// are built on: the DBTX query surface satisfied by both *sql.DB and
// *sql.Tx, and WithTx, which scopes a function to one transaction.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the query surface repositories are written against. A
// repository handed a *sql.Tx joins the caller's transaction; handed a
// *sql.DB it runs each statement standalone.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction on db: commit when fn returns nil,
// rollback when it returns an error or panics (the panic is rethrown).
// The vault mutations rely on this to keep a SELECT ... FOR UPDATE read
// and its dependent writes in one atomic unit.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
