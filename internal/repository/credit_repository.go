package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/nexora/internal/database"
)

// CreditRepository owns the credits table. Balances are only changed through
// conditional or additive updates, never written back from a value read earlier.
type CreditRepository struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewCreditRepository(db *sql.DB, dialect database.Dialect) *CreditRepository {
	return &CreditRepository{db: db, dialect: dialect}
}

func (r *CreditRepository) DB() *sql.DB {
	return r.db
}

// Balance returns the stored balance; a missing row is a zero balance.
func (r *CreditRepository) Balance(ctx context.Context, userID string) (int64, error) {
	const query = `SELECT balance FROM credits WHERE user_id = ?`
	var balance int64
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), userID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// Deduct subtracts amount only when the balance covers it. It reports false when
// no row matched, which covers both a short balance and a missing row.
func (r *CreditRepository) Deduct(ctx context.Context, userID string, amount int64) (bool, error) {
	const query = `
UPDATE credits SET balance = balance - ?, updated_at = CURRENT_TIMESTAMP
WHERE user_id = ? AND balance >= ?`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), amount, userID, amount)
	if err != nil {
		return false, fmt.Errorf("deduct credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deduct rows affected: %w", err)
	}
	return affected > 0, nil
}

// Add credits amount to the user's balance, creating the row when absent.
func (r *CreditRepository) Add(ctx context.Context, q database.Execer, userID string, amount int64) error {
	if q == nil {
		q = r.db
	}
	if _, err := q.ExecContext(ctx, r.dialect.EnsureCreditsRow(), userID); err != nil {
		return fmt.Errorf("ensure credits row: %w", err)
	}
	const query = `UPDATE credits SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`
	res, err := q.ExecContext(ctx, r.dialect.Rebind(query), amount, userID)
	if err != nil {
		return fmt.Errorf("add credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("add credits rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("add credits: no balance row for user %s", userID)
	}
	return nil
}
