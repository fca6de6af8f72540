package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/models"
)

const testWebhookSecret = "whsec_test"

type fakePayments struct {
	mu       sync.Mutex
	byCharge map[string]*models.Payment
}

func (f *fakePayments) Create(_ context.Context, _ database.Execer, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = int64(len(f.byCharge) + 1)
	f.byCharge[p.Provider+"/"+p.ProviderChargeID] = p
	return nil
}

func (f *fakePayments) FindByProviderCharge(_ context.Context, _ database.Execer, provider, chargeID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byCharge[provider+"/"+chargeID], nil
}

type billingHarness struct {
	subs     *fakeSubs
	credits  *fakeCredits
	payments *fakePayments
	plans    *PlanResolver
	svc      *BillingService
}

func newBillingHarness(secret string) *billingHarness {
	h := &billingHarness{
		subs:     newFakeSubs(),
		credits:  newFakeCredits(),
		payments: &fakePayments{byCharge: map[string]*models.Payment{}},
	}
	h.plans = NewPlanResolver(h.subs, 0, discardLogger())
	h.svc = NewBillingService(h.subs, h.payments, NewLedger(h.credits), h.plans, noTx, secret, discardLogger())
	return h
}

func signed(payload string) ([]byte, string) {
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  testWebhookSecret,
	})
	return sp.Payload, sp.Header
}

func TestStripeSubscriptionUpdated(t *testing.T) {
	h := newBillingHarness(testWebhookSecret)
	body, sig := signed(`{
		"id": "evt_1", "object": "event", "type": "customer.subscription.updated",
		"data": {"object": {"id": "sub_1", "object": "subscription", "status": "active",
			"metadata": {"user_id": "u1", "plan": "Pro"}}}
	}`)

	require.NoError(t, h.svc.HandleStripeWebhook(context.Background(), body, sig))
	tier, err := h.plans.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, tier)
}

func TestStripeSubscriptionDeleted(t *testing.T) {
	h := newBillingHarness(testWebhookSecret)
	h.subs.set("u1", "Growth", models.StatusActive)
	body, sig := signed(`{
		"id": "evt_2", "object": "event", "type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "object": "subscription", "status": "active",
			"metadata": {"user_id": "u1", "plan": "Growth"}}}
	}`)

	require.NoError(t, h.svc.HandleStripeWebhook(context.Background(), body, sig))
	tier, err := h.plans.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, tier)
}

func TestStripeCheckoutGrantsCreditsOnce(t *testing.T) {
	h := newBillingHarness(testWebhookSecret)
	event := `{
		"id": "evt_3", "object": "event", "type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "object": "checkout.session", "mode": "payment",
			"payment_status": "paid", "amount_total": 999, "currency": "usd",
			"payment_intent": "pi_1", "metadata": {"user_id": "u1", "credits": "100"}}}
	}`

	for i := 0; i < 2; i++ {
		body, sig := signed(event)
		require.NoError(t, h.svc.HandleStripeWebhook(context.Background(), body, sig))
	}
	assert.Equal(t, int64(100), h.credits.balance("u1"))

	payment := h.payments.byCharge["stripe/pi_1"]
	require.NotNil(t, payment)
	assert.Equal(t, "USD", payment.Currency)
	assert.Equal(t, int64(999), payment.Amount)
	assert.Equal(t, int64(100), payment.Credits)
}

func TestStripeCheckoutUnpaidIgnored(t *testing.T) {
	h := newBillingHarness(testWebhookSecret)
	body, sig := signed(`{
		"id": "evt_4", "object": "event", "type": "checkout.session.completed",
		"data": {"object": {"id": "cs_2", "object": "checkout.session", "mode": "payment",
			"payment_status": "unpaid", "metadata": {"user_id": "u1", "credits": "100"}}}
	}`)
	require.NoError(t, h.svc.HandleStripeWebhook(context.Background(), body, sig))
	assert.Zero(t, h.credits.balance("u1"))
}

func TestStripeCheckoutMissingCredits(t *testing.T) {
	h := newBillingHarness(testWebhookSecret)
	body, sig := signed(`{
		"id": "evt_5", "object": "event", "type": "checkout.session.completed",
		"data": {"object": {"id": "cs_3", "object": "checkout.session", "mode": "payment",
			"payment_status": "paid", "metadata": {"user_id": "u1"}}}
	}`)
	assert.ErrorIs(t, h.svc.HandleStripeWebhook(context.Background(), body, sig), ErrWebhookMalformed)
}

func TestStripeBadSignature(t *testing.T) {
	h := newBillingHarness(testWebhookSecret)
	err := h.svc.HandleStripeWebhook(context.Background(), []byte(`{"id":"evt"}`), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrWebhookSignature)
}

func TestStripeDisabledWithoutSecret(t *testing.T) {
	h := newBillingHarness("")
	err := h.svc.HandleStripeWebhook(context.Background(), []byte(`{}`), "")
	assert.ErrorIs(t, err, ErrBillingDisabled)
}

func TestStripeUnknownEventIgnored(t *testing.T) {
	h := newBillingHarness(testWebhookSecret)
	body, sig := signed(`{"id": "evt_6", "object": "event", "type": "invoice.created", "data": {"object": {}}}`)
	assert.NoError(t, h.svc.HandleStripeWebhook(context.Background(), body, sig))
}
