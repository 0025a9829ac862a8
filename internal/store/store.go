// Package store holds the SQLite-backed persistence for transfers and the
// collaborator tables the transfer workflow reads: users, inventories with
// their members, and the current location of each item.
//
// Functions take a DBTX so the same code runs against the pool or inside a
// transaction opened by WithTx.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors returned by store functions.
var (
	ErrItemNotFound      = errors.New("item not found")
	ErrItemMoved         = errors.New("item is no longer in the expected inventory")
	ErrInventoryNotFound = errors.New("inventory not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrPendingExists     = errors.New("pending transfer already exists for item")
	ErrNotPending        = errors.New("transfer is not pending")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction, committing if fn returns nil and
// rolling back otherwise.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}
