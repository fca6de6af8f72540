package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/models"
	"github.com/digkill/nexora/internal/repository"
)

var (
	ErrPromoInvalid         = errors.New("promo code invalid")
	ErrPromoAlreadyRedeemed = errors.New("promo code already redeemed")
	ErrPromoExhausted       = repository.ErrPromoExhausted
)

type PromoStore interface {
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)
	GetByID(ctx context.Context, id int64) (*models.PromoCode, error)
	List(ctx context.Context) ([]models.PromoCode, error)
	Create(ctx context.Context, promo *models.PromoCode) (*models.PromoCode, error)
	Update(ctx context.Context, promo *models.PromoCode) (*models.PromoCode, error)
	Delete(ctx context.Context, id int64) error
	ClaimUse(ctx context.Context, q database.Execer, promoID int64) error
	HasUserRedeemed(ctx context.Context, q database.Execer, userID string, promoID int64) (bool, error)
	RecordRedemption(ctx context.Context, q database.Execer, userID string, promoID int64) error
}

type PromoService struct {
	promos PromoStore
	ledger *Ledger
	tx     TxFunc
}

func NewPromoService(promos PromoStore, ledger *Ledger, tx TxFunc) *PromoService {
	return &PromoService{promos: promos, ledger: ledger, tx: tx}
}

// Redeem grants the code's credits to the user. The usage claim, redemption
// record and credit grant commit together.
func (s *PromoService) Redeem(ctx context.Context, userID string, code string) (*models.PromoCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &ValidationError{Field: "code", Reason: "promo code is required"}
	}
	promo, err := s.promos.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get promo: %w", err)
	}
	if promo == nil {
		return nil, ErrPromoInvalid
	}

	err = s.tx(ctx, func(q database.Execer) error {
		redeemed, err := s.promos.HasUserRedeemed(ctx, q, userID, promo.ID)
		if err != nil {
			return err
		}
		if redeemed {
			return ErrPromoAlreadyRedeemed
		}
		if err := s.promos.ClaimUse(ctx, q, promo.ID); err != nil {
			return err
		}
		if err := s.promos.RecordRedemption(ctx, q, userID, promo.ID); err != nil {
			return err
		}
		return s.ledger.GrantTx(ctx, q, userID, promo.Credits)
	})
	if err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *PromoService) List(ctx context.Context) ([]models.PromoCode, error) {
	return s.promos.List(ctx)
}

func (s *PromoService) GetByID(ctx context.Context, id int64) (*models.PromoCode, error) {
	return s.promos.GetByID(ctx, id)
}

func (s *PromoService) Create(ctx context.Context, code string, credits int64, maxUses int) (*models.PromoCode, error) {
	promo := &models.PromoCode{Code: strings.TrimSpace(code), Credits: credits, MaxUses: maxUses}
	if err := validatePromo(promo); err != nil {
		return nil, err
	}
	return s.promos.Create(ctx, promo)
}

func (s *PromoService) Update(ctx context.Context, promo *models.PromoCode) (*models.PromoCode, error) {
	promo.Code = strings.TrimSpace(promo.Code)
	if err := validatePromo(promo); err != nil {
		return nil, err
	}
	if promo.Uses < 0 || promo.Uses > promo.MaxUses {
		return nil, &ValidationError{Field: "uses", Reason: "uses must be between 0 and max_uses"}
	}
	return s.promos.Update(ctx, promo)
}

func (s *PromoService) Delete(ctx context.Context, id int64) error {
	return s.promos.Delete(ctx, id)
}

func validatePromo(p *models.PromoCode) error {
	switch {
	case p.Code == "":
		return &ValidationError{Field: "code", Reason: "code is required"}
	case p.Credits <= 0:
		return &ValidationError{Field: "credits", Reason: "credits must be positive"}
	case p.MaxUses <= 0:
		return &ValidationError{Field: "max_uses", Reason: "max_uses must be positive"}
	}
	return nil
}
