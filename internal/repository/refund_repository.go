package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/models"
)

// RefundRepository persists refunds that could not be written inline.
type RefundRepository struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewRefundRepository(db *sql.DB, dialect database.Dialect) *RefundRepository {
	return &RefundRepository{db: db, dialect: dialect}
}

func (r *RefundRepository) DB() *sql.DB {
	return r.db
}

func (r *RefundRepository) Enqueue(ctx context.Context, refund models.PendingRefund) error {
	const query = `
INSERT INTO pending_refunds (id, user_id, amount, model_id, reason, attempts, last_error)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		refund.ID, refund.UserID, refund.Amount, refund.ModelID, refund.Reason, refund.Attempts, refund.LastError); err != nil {
		return fmt.Errorf("enqueue pending refund: %w", err)
	}
	return nil
}

// ListOpen returns unresolved refunds, oldest first.
func (r *RefundRepository) ListOpen(ctx context.Context, limit uint64) ([]models.PendingRefund, error) {
	query, args, err := r.dialect.Builder().
		Select("id", "user_id", "amount", "model_id", "reason", "attempts", "COALESCE(last_error, '')", "created_at").
		From("pending_refunds").
		Where("resolved_at IS NULL").
		OrderBy("created_at ASC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending refunds query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending refunds: %w", err)
	}
	defer rows.Close()

	var refunds []models.PendingRefund
	for rows.Next() {
		var p models.PendingRefund
		if err := rows.Scan(&p.ID, &p.UserID, &p.Amount, &p.ModelID, &p.Reason, &p.Attempts, &p.LastError, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending refund: %w", err)
		}
		refunds = append(refunds, p)
	}
	return refunds, rows.Err()
}

// Resolve marks the refund settled. It reports false when another worker got there first.
func (r *RefundRepository) Resolve(ctx context.Context, q database.Execer, id string) (bool, error) {
	const query = `UPDATE pending_refunds SET resolved_at = CURRENT_TIMESTAMP WHERE id = ? AND resolved_at IS NULL`
	res, err := q.ExecContext(ctx, r.dialect.Rebind(query), id)
	if err != nil {
		return false, fmt.Errorf("resolve pending refund: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *RefundRepository) RecordFailure(ctx context.Context, id string, cause string) error {
	const query = `UPDATE pending_refunds SET attempts = attempts + 1, last_error = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), cause, id); err != nil {
		return fmt.Errorf("record refund failure: %w", err)
	}
	return nil
}
