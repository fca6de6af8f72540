package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/models"
)

type SubscriptionRepository struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewSubscriptionRepository(db *sql.DB, dialect database.Dialect) *SubscriptionRepository {
	return &SubscriptionRepository{db: db, dialect: dialect}
}

// Find returns the user's subscription row, or nil when the user never subscribed.
func (r *SubscriptionRepository) Find(ctx context.Context, userID string) (*models.Subscription, error) {
	const query = `
SELECT user_id, plan_name, status, updated_at
FROM subscriptions WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), userID)
	var sub models.Subscription
	var status string
	if err := row.Scan(&sub.UserID, &sub.PlanName, &status, &sub.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.Status = models.SubscriptionStatus(status)
	return &sub, nil
}

// Upsert stores the latest plan and status reported by billing.
func (r *SubscriptionRepository) Upsert(ctx context.Context, userID string, plan models.PlanTier, status models.SubscriptionStatus) error {
	if _, err := r.db.ExecContext(ctx, r.dialect.UpsertSubscription(), userID, string(plan), string(status)); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}
