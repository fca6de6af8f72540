package service

import (
	"context"
	"fmt"

	"github.com/digkill/nexora/internal/database"
)

type CreditStore interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Deduct(ctx context.Context, userID string, amount int64) (bool, error)
	Add(ctx context.Context, q database.Execer, userID string, amount int64) error
}

// Ledger is the only code path that mutates credit balances.
type Ledger struct {
	credits CreditStore
}

func NewLedger(credits CreditStore) *Ledger {
	return &Ledger{credits: credits}
}

func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	balance, err := l.credits.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return balance, nil
}

// Deduct takes amount from the balance in one conditional write. A short balance
// yields ErrInsufficientCredits and leaves the balance untouched.
func (l *Ledger) Deduct(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	ok, err := l.credits.Deduct(ctx, userID, amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	if !ok {
		return ErrInsufficientCredits
	}
	return nil
}

// Refund returns amount to the balance. Callers refund once per failed deduction.
func (l *Ledger) Refund(ctx context.Context, userID string, amount int64) error {
	return l.add(ctx, nil, userID, amount)
}

// Grant adds purchased or promotional credits.
func (l *Ledger) Grant(ctx context.Context, userID string, amount int64) error {
	return l.add(ctx, nil, userID, amount)
}

// GrantTx adds credits as part of the caller's transaction.
func (l *Ledger) GrantTx(ctx context.Context, q database.Execer, userID string, amount int64) error {
	return l.add(ctx, q, userID, amount)
}

func (l *Ledger) add(ctx context.Context, q database.Execer, userID string, amount int64) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if err := l.credits.Add(ctx, q, userID, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	return nil
}
