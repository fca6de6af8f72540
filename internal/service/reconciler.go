package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/metrics"
	"github.com/digkill/nexora/internal/models"
)

type PendingRefundStore interface {
	ListOpen(ctx context.Context, limit uint64) ([]models.PendingRefund, error)
	Resolve(ctx context.Context, q database.Execer, id string) (bool, error)
	RecordFailure(ctx context.Context, id string, cause string) error
}

// Reconciler applies refunds the executor could not write inline.
type Reconciler struct {
	refunds  PendingRefundStore
	ledger   *Ledger
	tx       TxFunc
	metrics  *metrics.Metrics
	log      *slog.Logger
	batch    uint64
	interval time.Duration
}

func NewReconciler(refunds PendingRefundStore, ledger *Ledger, tx TxFunc, m *metrics.Metrics, log *slog.Logger, batch int, interval time.Duration) *Reconciler {
	if batch <= 0 {
		batch = 50
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		refunds:  refunds,
		ledger:   ledger,
		tx:       tx,
		metrics:  m,
		log:      log,
		batch:    uint64(batch),
		interval: interval,
	}
}

// Run drains the queue every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("refund reconciler started", "interval", r.interval)
	for {
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Error("reconcile pending refunds", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch and returns how many refunds were applied.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.refunds.ListOpen(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("list pending refunds: %w", err)
	}
	r.metrics.PendingRefunds(len(pending))

	applied := 0
	for _, p := range pending {
		ok, err := r.apply(ctx, p)
		if err != nil {
			r.log.Warn("pending refund still failing", "refund_id", p.ID, "user_id", p.UserID, "amount", p.Amount, "err", err)
			if recErr := r.refunds.RecordFailure(ctx, p.ID, err.Error()); recErr != nil {
				r.log.Error("record refund failure", "refund_id", p.ID, "err", recErr)
			}
			continue
		}
		if ok {
			applied++
			r.metrics.Refund("reconciled")
			r.log.Info("pending refund applied", "refund_id", p.ID, "user_id", p.UserID, "amount", p.Amount)
		}
	}
	return applied, nil
}

// apply claims the row and credits the balance in one transaction, so a refund
// is applied at most once even with several reconcilers running.
func (r *Reconciler) apply(ctx context.Context, p models.PendingRefund) (bool, error) {
	return applyRefund(ctx, r.tx, r.refunds, r.ledger, p)
}

type refundResolver interface {
	Resolve(ctx context.Context, q database.Execer, id string) (bool, error)
}

// applyRefund resolves the journal row and grants the amount in one
// transaction. It reports false when the row was already resolved.
func applyRefund(ctx context.Context, tx TxFunc, refunds refundResolver, ledger *Ledger, p models.PendingRefund) (bool, error) {
	claimed := false
	err := tx(ctx, func(q database.Execer) error {
		ok, err := refunds.Resolve(ctx, q, p.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := ledger.GrantTx(ctx, q, p.UserID, p.Amount); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}
