package models

import (
	"strings"
	"time"
)

type PlanTier string

const (
	PlanFree   PlanTier = "Free"
	PlanGrowth PlanTier = "Growth"
	PlanPro    PlanTier = "Pro"
)

// ParsePlanTier validates a stored plan name. Unrecognised names fail closed to Free.
func ParsePlanTier(name string) (PlanTier, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "free":
		return PlanFree, true
	case "growth":
		return PlanGrowth, true
	case "pro":
		return PlanPro, true
	default:
		return PlanFree, false
	}
}

// Paid reports whether the tier unlocks premium models.
func (t PlanTier) Paid() bool {
	return t == PlanGrowth || t == PlanPro
}

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusTrialing  SubscriptionStatus = "trialing"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusNone      SubscriptionStatus = "none"
)

// Entitled reports whether a subscription in this status keeps its plan.
func (s SubscriptionStatus) Entitled() bool {
	switch s {
	case StatusActive, StatusPastDue, StatusTrialing:
		return true
	default:
		return false
	}
}

type Subscription struct {
	UserID    string
	PlanName  string
	Status    SubscriptionStatus
	UpdatedAt time.Time
}

type GenerationKind string

const (
	KindImage    GenerationKind = "image"
	KindVideo    GenerationKind = "video"
	KindDirector GenerationKind = "director"
	KindChat     GenerationKind = "chat"
)

func (k GenerationKind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindDirector, KindChat:
		return true
	default:
		return false
	}
}

type GenerationRecord struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Kind      GenerationKind `json:"kind"`
	ModelID   string         `json:"model_id"`
	Prompt    string         `json:"prompt"`
	OutputURL string         `json:"output_url"`
	Cost      int64          `json:"cost"`
	CreatedAt time.Time      `json:"created_at"`
}

// PendingRefund is a refund whose write failed and awaits reconciliation.
type PendingRefund struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Amount     int64      `json:"amount"`
	ModelID    string     `json:"model_id"`
	Reason     string     `json:"reason"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type PromoCode struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Credits   int64     `json:"credits"`
	MaxUses   int       `json:"max_uses"`
	Uses      int       `json:"uses"`
	CreatedAt time.Time `json:"created_at"`
}

type Payment struct {
	ID               int64
	UserID           string
	Provider         string
	ProviderChargeID string
	Currency         string
	Amount           int64
	Credits          int64
	Status           string
	RawPayload       string
	CreatedAt        time.Time
}
