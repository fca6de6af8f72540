package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/models"
)

type PaymentRepository struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewPaymentRepository(db *sql.DB, dialect database.Dialect) *PaymentRepository {
	return &PaymentRepository{db: db, dialect: dialect}
}

func (r *PaymentRepository) Create(ctx context.Context, q database.Execer, payment *models.Payment) error {
	if q == nil {
		q = r.db
	}
	const query = `
INSERT INTO payments (user_id, provider, provider_charge_id, currency, amount, credits, status, raw_payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := r.dialect.InsertReturningID(ctx, q, query,
		payment.UserID, payment.Provider, payment.ProviderChargeID, payment.Currency,
		payment.Amount, payment.Credits, payment.Status, payment.RawPayload)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	payment.ID = id
	return nil
}

func (r *PaymentRepository) FindByProviderCharge(ctx context.Context, q database.Execer, provider, chargeID string) (*models.Payment, error) {
	if q == nil {
		q = r.db
	}
	const query = `
SELECT id, user_id, provider, provider_charge_id, currency, amount, credits, status, COALESCE(raw_payload, ''), created_at
FROM payments WHERE provider = ? AND provider_charge_id = ?`
	row := q.QueryRowContext(ctx, r.dialect.Rebind(query), provider, chargeID)
	var p models.Payment
	if err := row.Scan(&p.ID, &p.UserID, &p.Provider, &p.ProviderChargeID, &p.Currency, &p.Amount, &p.Credits, &p.Status, &p.RawPayload, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}
