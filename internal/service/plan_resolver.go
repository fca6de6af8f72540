package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/digkill/nexora/internal/models"
)

type SubscriptionStore interface {
	Find(ctx context.Context, userID string) (*models.Subscription, error)
}

// PlanResolver maps a user to a plan tier from the subscription row.
type PlanResolver struct {
	subs  SubscriptionStore
	cache *cache.Cache
	log   *slog.Logger
}

// NewPlanResolver caches resolved tiers for ttl; a zero ttl disables caching.
func NewPlanResolver(subs SubscriptionStore, ttl time.Duration, log *slog.Logger) *PlanResolver {
	r := &PlanResolver{subs: subs, log: log}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

// Resolve returns Free for a missing row, an inactive status or an unrecognised
// plan name. On store errors it returns Free together with ErrPlanUnavailable.
func (r *PlanResolver) Resolve(ctx context.Context, userID string) (models.PlanTier, error) {
	if r.cache != nil {
		if tier, ok := r.cache.Get(userID); ok {
			return tier.(models.PlanTier), nil
		}
	}

	sub, err := r.subs.Find(ctx, userID)
	if err != nil {
		return models.PlanFree, fmt.Errorf("%w: %v", ErrPlanUnavailable, err)
	}

	tier := models.PlanFree
	if sub != nil && sub.Status.Entitled() {
		parsed, known := models.ParsePlanTier(sub.PlanName)
		if !known {
			r.log.Warn("unrecognised plan name, treating as Free", "user_id", userID, "plan_name", sub.PlanName)
		}
		tier = parsed
	}

	if r.cache != nil {
		r.cache.SetDefault(userID, tier)
	}
	return tier, nil
}

// Forget drops the cached tier so the next Resolve reads the store.
func (r *PlanResolver) Forget(userID string) {
	if r.cache != nil {
		r.cache.Delete(userID)
	}
}
