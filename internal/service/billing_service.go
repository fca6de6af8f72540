package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/models"
)

var (
	ErrBillingDisabled  = errors.New("billing webhook not configured")
	ErrWebhookSignature = errors.New("webhook signature verification failed")
	ErrWebhookMalformed = errors.New("webhook payload malformed")
)

const providerStripe = "stripe"

type SubscriptionWriter interface {
	Upsert(ctx context.Context, userID string, plan models.PlanTier, status models.SubscriptionStatus) error
}

type PaymentStore interface {
	Create(ctx context.Context, q database.Execer, payment *models.Payment) error
	FindByProviderCharge(ctx context.Context, q database.Execer, provider, chargeID string) (*models.Payment, error)
}

// BillingService turns Stripe webhook events into subscription rows and credit grants.
type BillingService struct {
	subs     SubscriptionWriter
	payments PaymentStore
	ledger   *Ledger
	plans    *PlanResolver
	tx       TxFunc
	secret   string
	log      *slog.Logger
}

func NewBillingService(subs SubscriptionWriter, payments PaymentStore, ledger *Ledger, plans *PlanResolver, tx TxFunc, webhookSecret string, log *slog.Logger) *BillingService {
	return &BillingService{
		subs:     subs,
		payments: payments,
		ledger:   ledger,
		plans:    plans,
		tx:       tx,
		secret:   webhookSecret,
		log:      log,
	}
}

// HandleStripeWebhook verifies the signature and applies the event. Unknown
// event types are acknowledged and ignored.
func (s *BillingService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.secret == "" {
		return ErrBillingDisabled
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		return s.handleSubscription(ctx, event)
	case "checkout.session.completed":
		return s.handleCheckout(ctx, event)
	default:
		s.log.Debug("ignoring stripe event", "type", event.Type, "id", event.ID)
		return nil
	}
}

func (s *BillingService) handleSubscription(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: subscription: %v", ErrWebhookMalformed, err)
	}
	userID := strings.TrimSpace(sub.Metadata["user_id"])
	if userID == "" {
		return fmt.Errorf("%w: subscription %s has no user_id metadata", ErrWebhookMalformed, sub.ID)
	}
	plan, known := models.ParsePlanTier(sub.Metadata["plan"])
	if !known {
		s.log.Warn("subscription has unknown plan metadata", "subscription", sub.ID, "plan", sub.Metadata["plan"])
	}

	status := subscriptionStatus(sub.Status)
	if event.Type == "customer.subscription.deleted" {
		status = models.StatusCancelled
	}

	if err := s.subs.Upsert(ctx, userID, plan, status); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	s.plans.Forget(userID)
	s.log.Info("subscription updated", "user_id", userID, "plan", plan, "status", status, "subscription", sub.ID)
	return nil
}

func (s *BillingService) handleCheckout(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("%w: checkout session: %v", ErrWebhookMalformed, err)
	}
	if session.Mode != stripe.CheckoutSessionModePayment {
		return nil
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		s.log.Info("checkout session not paid yet", "session", session.ID, "payment_status", session.PaymentStatus)
		return nil
	}

	userID := strings.TrimSpace(session.Metadata["user_id"])
	if userID == "" {
		userID = strings.TrimSpace(session.ClientReferenceID)
	}
	if userID == "" {
		return fmt.Errorf("%w: session %s has no user", ErrWebhookMalformed, session.ID)
	}
	credits, err := strconv.ParseInt(session.Metadata["credits"], 10, 64)
	if err != nil || credits <= 0 {
		return fmt.Errorf("%w: session %s has invalid credits metadata", ErrWebhookMalformed, session.ID)
	}

	chargeID := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		chargeID = session.PaymentIntent.ID
	}

	granted := false
	err = s.tx(ctx, func(q database.Execer) error {
		existing, err := s.payments.FindByProviderCharge(ctx, q, providerStripe, chargeID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		payment := &models.Payment{
			UserID:           userID,
			Provider:         providerStripe,
			ProviderChargeID: chargeID,
			Currency:         strings.ToUpper(string(session.Currency)),
			Amount:           session.AmountTotal,
			Credits:          credits,
			Status:           "paid",
			RawPayload:       string(event.Data.Raw),
		}
		if err := s.payments.Create(ctx, q, payment); err != nil {
			return err
		}
		if err := s.ledger.GrantTx(ctx, q, userID, credits); err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply credit purchase: %w", err)
	}
	if granted {
		s.log.Info("credit pack purchased", "user_id", userID, "credits", credits, "charge", chargeID)
	}
	return nil
}

func subscriptionStatus(status stripe.SubscriptionStatus) models.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return models.StatusActive
	case stripe.SubscriptionStatusPastDue:
		return models.StatusPastDue
	case stripe.SubscriptionStatusTrialing:
		return models.StatusTrialing
	case stripe.SubscriptionStatusCanceled:
		return models.StatusCancelled
	default:
		return models.StatusNone
	}
}
