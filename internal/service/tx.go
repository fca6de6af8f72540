package service

import (
	"context"
	"database/sql"

	"github.com/digkill/nexora/internal/database"
)

// TxFunc runs fn inside one transaction.
type TxFunc func(ctx context.Context, fn func(q database.Execer) error) error

func SQLTx(db *sql.DB) TxFunc {
	return func(ctx context.Context, fn func(q database.Execer) error) error {
		return database.WithTx(ctx, db, func(tx *sql.Tx) error {
			return fn(tx)
		})
	}
}
