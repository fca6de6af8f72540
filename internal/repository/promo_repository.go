package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/models"
)

var ErrPromoExhausted = errors.New("promo code exhausted")

type PromoRepository struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewPromoRepository(db *sql.DB, dialect database.Dialect) *PromoRepository {
	return &PromoRepository{db: db, dialect: dialect}
}

func (r *PromoRepository) DB() *sql.DB {
	return r.db
}

const promoColumns = `id, code, credits, max_uses, uses, created_at`

func scanPromo(row interface{ Scan(...any) error }) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := row.Scan(&promo.ID, &promo.Code, &promo.Credits, &promo.MaxUses, &promo.Uses, &promo.CreatedAt); err != nil {
		return nil, err
	}
	return &promo, nil
}

func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	const query = `SELECT ` + promoColumns + ` FROM promo_codes WHERE code = ?`
	promo, err := scanPromo(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan promo: %w", err)
	}
	return promo, nil
}

func (r *PromoRepository) GetByID(ctx context.Context, id int64) (*models.PromoCode, error) {
	const query = `SELECT ` + promoColumns + ` FROM promo_codes WHERE id = ?`
	promo, err := scanPromo(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get promo by id: %w", err)
	}
	return promo, nil
}

func (r *PromoRepository) List(ctx context.Context) ([]models.PromoCode, error) {
	const query = `SELECT ` + promoColumns + ` FROM promo_codes ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list promos: %w", err)
	}
	defer rows.Close()

	var promos []models.PromoCode
	for rows.Next() {
		promo, err := scanPromo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promo list: %w", err)
		}
		promos = append(promos, *promo)
	}
	return promos, rows.Err()
}

func (r *PromoRepository) Create(ctx context.Context, promo *models.PromoCode) (*models.PromoCode, error) {
	const query = `INSERT INTO promo_codes (code, credits, max_uses, uses) VALUES (?, ?, ?, 0)`
	id, err := r.dialect.InsertReturningID(ctx, r.db, query, promo.Code, promo.Credits, promo.MaxUses)
	if err != nil {
		return nil, fmt.Errorf("create promo: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *PromoRepository) Update(ctx context.Context, promo *models.PromoCode) (*models.PromoCode, error) {
	const query = `
UPDATE promo_codes
SET code = ?, credits = ?, max_uses = ?, uses = ?
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), promo.Code, promo.Credits, promo.MaxUses, promo.Uses, promo.ID); err != nil {
		return nil, fmt.Errorf("update promo: %w", err)
	}
	return r.GetByID(ctx, promo.ID)
}

func (r *PromoRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM promo_codes WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), id); err != nil {
		return fmt.Errorf("delete promo: %w", err)
	}
	return nil
}

// ClaimUse consumes one use of the code, failing with ErrPromoExhausted when none remain.
func (r *PromoRepository) ClaimUse(ctx context.Context, q database.Execer, promoID int64) error {
	const query = `
UPDATE promo_codes SET uses = uses + 1
WHERE id = ? AND uses < max_uses`
	res, err := q.ExecContext(ctx, r.dialect.Rebind(query), promoID)
	if err != nil {
		return fmt.Errorf("increment promo usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("promo usage rows affected: %w", err)
	}
	if affected == 0 {
		return ErrPromoExhausted
	}
	return nil
}

func (r *PromoRepository) HasUserRedeemed(ctx context.Context, q database.Execer, userID string, promoID int64) (bool, error) {
	const query = `SELECT 1 FROM promo_redemptions WHERE user_id = ? AND promo_code_id = ?`
	var dummy int
	if err := q.QueryRowContext(ctx, r.dialect.Rebind(query), userID, promoID).Scan(&dummy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check promo redemption: %w", err)
	}
	return true, nil
}

func (r *PromoRepository) RecordRedemption(ctx context.Context, q database.Execer, userID string, promoID int64) error {
	const query = `INSERT INTO promo_redemptions (user_id, promo_code_id) VALUES (?, ?)`
	if _, err := q.ExecContext(ctx, r.dialect.Rebind(query), userID, promoID); err != nil {
		return fmt.Errorf("record redemption: %w", err)
	}
	return nil
}
