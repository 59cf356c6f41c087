package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// TxTimeout bounds a single write transaction. A transaction that cannot
// finish within it fails with a persistence error instead of hanging.
const TxTimeout = 30 * time.Second

// WithSerializableTx runs fn inside a serializable transaction with a bounded
// timeout. The transaction is rolled back entirely on error or panic; there
// are no partial commits.
func WithSerializableTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	txCtx, cancel := context.WithTimeout(ctx, TxTimeout)
	defer cancel()

	tx, err := db.BeginTxx(txCtx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
