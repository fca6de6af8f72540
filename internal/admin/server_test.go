package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/nexora/internal/models"
	"github.com/digkill/nexora/internal/service"
)

type fakeLedger struct {
	balances map[string]int64
	err      error
}

func (f *fakeLedger) Balance(_ context.Context, userID string) (int64, error) {
	return f.balances[userID], f.err
}

func (f *fakeLedger) Grant(_ context.Context, userID string, amount int64) error {
	if f.err != nil {
		return f.err
	}
	f.balances[userID] += amount
	return nil
}

type fakePromos struct {
	promos map[int64]*models.PromoCode
	nextID int64
}

func (f *fakePromos) List(context.Context) ([]models.PromoCode, error) {
	out := make([]models.PromoCode, 0, len(f.promos))
	for _, p := range f.promos {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePromos) GetByID(_ context.Context, id int64) (*models.PromoCode, error) {
	p, ok := f.promos[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePromos) Create(_ context.Context, code string, credits int64, maxUses int) (*models.PromoCode, error) {
	if code == "" {
		return nil, &service.ValidationError{Field: "code", Reason: "code is required"}
	}
	f.nextID++
	p := &models.PromoCode{ID: f.nextID, Code: code, Credits: credits, MaxUses: maxUses}
	f.promos[p.ID] = p
	return p, nil
}

func (f *fakePromos) Update(_ context.Context, promo *models.PromoCode) (*models.PromoCode, error) {
	if promo.Uses > promo.MaxUses {
		return nil, &service.ValidationError{Field: "uses", Reason: "uses must be between 0 and max_uses"}
	}
	f.promos[promo.ID] = promo
	return promo, nil
}

func (f *fakePromos) Delete(_ context.Context, id int64) error {
	delete(f.promos, id)
	return nil
}

type fakeSubs struct {
	userID string
	plan   models.PlanTier
	status models.SubscriptionStatus
}

func (f *fakeSubs) Upsert(_ context.Context, userID string, plan models.PlanTier, status models.SubscriptionStatus) error {
	f.userID, f.plan, f.status = userID, plan, status
	return nil
}

type fakePlanCache struct{ forgotten []string }

func (f *fakePlanCache) Forget(userID string) { f.forgotten = append(f.forgotten, userID) }

type fakeRefunds struct {
	limit uint64
	items []models.PendingRefund
}

func (f *fakeRefunds) ListOpen(_ context.Context, limit uint64) ([]models.PendingRefund, error) {
	f.limit = limit
	return f.items, nil
}

type fakeReconciler struct{ applied int }

func (f fakeReconciler) RunOnce(context.Context) (int, error) { return f.applied, nil }

type fixture struct {
	server  *Server
	ledger  *fakeLedger
	promos  *fakePromos
	subs    *fakeSubs
	plans   *fakePlanCache
	refunds *fakeRefunds
}

func newFixture() *fixture {
	f := &fixture{
		ledger:  &fakeLedger{balances: map[string]int64{"u1": 10}},
		promos:  &fakePromos{promos: map[int64]*models.PromoCode{}},
		subs:    &fakeSubs{},
		plans:   &fakePlanCache{},
		refunds: &fakeRefunds{items: []models.PendingRefund{{ID: "r1", UserID: "u1", Amount: 40}}},
	}
	f.server = NewServer(":0", "admin", "pw", slog.New(slog.NewTextHandler(io.Discard, nil)), Services{
		Ledger:        f.ledger,
		Promos:        f.promos,
		Subscriptions: f.subs,
		Plans:         f.plans,
		Refunds:       f.refunds,
		Reconciler:    fakeReconciler{applied: 3},
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.SetBasicAuth("admin", "pw")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestBasicAuthRequired(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/credits/u1", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "nexora-admin")

	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGrantCredits(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/credits/u1", grantRequest{Amount: 25, Reason: "support ticket"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, balanceResponse{UserID: "u1", Balance: 35}, resp)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/credits/u1", grantRequest{Amount: 0}).Code)
	assert.Equal(t, int64(35), f.ledger.balances["u1"])

	rec = f.do(t, http.MethodGet, "/credits/u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":35`)
}

func TestGrantCreditsLedgerFailure(t *testing.T) {
	f := newFixture()
	f.ledger.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, f.do(t, http.MethodPost, "/credits/u1", grantRequest{Amount: 5}).Code)
}

func TestSetSubscriptionForgetsCachedPlan(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPut, "/subscriptions/u7", subscriptionRequest{Plan: "growth", Status: "active"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u7", f.subs.userID)
	assert.Equal(t, models.PlanGrowth, f.subs.plan)
	assert.Equal(t, models.StatusActive, f.subs.status)
	assert.Equal(t, []string{"u7"}, f.plans.forgotten)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/subscriptions/u7", subscriptionRequest{Plan: "Enterprise", Status: "active"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/subscriptions/u7", subscriptionRequest{Plan: "Pro", Status: "paused"}).Code)
}

func TestPromoCRUD(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/promo-codes", promoRequest{Code: "SPRING", Credits: 50, MaxUses: 10})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.PromoCode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(50), created.Credits)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/promo-codes", promoRequest{Credits: 5, MaxUses: 1}).Code)

	credits := int64(75)
	rec = f.do(t, http.MethodPut, "/promo-codes/1", promoUpdateRequest{Credits: &credits})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(75), f.promos.promos[1].Credits)
	assert.Equal(t, "SPRING", f.promos.promos[1].Code)

	uses := 11
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/promo-codes/1", promoUpdateRequest{Uses: &uses}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, "/promo-codes/99", promoUpdateRequest{Credits: &credits}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/promo-codes/abc", promoUpdateRequest{}).Code)

	rec = f.do(t, http.MethodGet, "/promo-codes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SPRING")

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/promo-codes/1", nil).Code)
	assert.Empty(t, f.promos.promos)
}

func TestPendingRefunds(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/refunds/pending?limit=20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(20), f.refunds.limit)
	assert.Contains(t, rec.Body.String(), `"id":"r1"`)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/refunds/pending?limit=0", nil).Code)

	rec = f.do(t, http.MethodPost, "/refunds/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"applied":3}`, rec.Body.String())
}
