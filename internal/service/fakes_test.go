package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/models"
	"github.com/digkill/nexora/internal/provider"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSubs struct {
	mu    sync.Mutex
	rows  map[string]*models.Subscription
	err   error
	calls int
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{rows: map[string]*models.Subscription{}}
}

func (f *fakeSubs) set(userID, plan string, status models.SubscriptionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[userID] = &models.Subscription{UserID: userID, PlanName: plan, Status: status}
}

func (f *fakeSubs) Find(_ context.Context, userID string) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[userID], nil
}

func (f *fakeSubs) Upsert(_ context.Context, userID string, plan models.PlanTier, status models.SubscriptionStatus) error {
	f.set(userID, string(plan), status)
	return nil
}

// fakeCredits mirrors the conditional SQL update under a mutex.
type fakeCredits struct {
	mu        sync.Mutex
	balances  map[string]int64
	deductErr error
	addErrs   int
	addCalls  int
	deducts   int
}

func newFakeCredits() *fakeCredits {
	return &fakeCredits{balances: map[string]int64{}}
}

func (f *fakeCredits) balance(userID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

func (f *fakeCredits) Balance(_ context.Context, userID string) (int64, error) {
	return f.balance(userID), nil
}

func (f *fakeCredits) Deduct(_ context.Context, userID string, amount int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deducts++
	if f.deductErr != nil {
		return false, f.deductErr
	}
	if f.balances[userID] < amount {
		return false, nil
	}
	f.balances[userID] -= amount
	return true, nil
}

func (f *fakeCredits) Add(_ context.Context, _ database.Execer, userID string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.addErrs > 0 {
		f.addErrs--
		return errors.New("connection refused")
	}
	f.balances[userID] += amount
	return nil
}

type fakeHistory struct {
	mu      sync.Mutex
	records []models.GenerationRecord
	err     error
}

func (f *fakeHistory) Insert(_ context.Context, rec models.GenerationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeHistory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// fakeRefundJournal keeps pending refunds in memory. Its tx rolls back
// resolutions when fn fails; commitErrs reports a commit failure after the
// writes already landed.
type fakeRefundJournal struct {
	mu         sync.Mutex
	pending    []models.PendingRefund
	resolved   map[string]bool
	failures   map[string]int
	err        error
	commitErrs int
}

func newFakeRefundJournal() *fakeRefundJournal {
	return &fakeRefundJournal{resolved: map[string]bool{}, failures: map[string]int{}}
}

func (f *fakeRefundJournal) Enqueue(_ context.Context, refund models.PendingRefund) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pending = append(f.pending, refund)
	return nil
}

func (f *fakeRefundJournal) Resolve(_ context.Context, _ database.Execer, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved[id] {
		return false, nil
	}
	f.resolved[id] = true
	return true, nil
}

func (f *fakeRefundJournal) RecordFailure(_ context.Context, id string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id]++
	return nil
}

func (f *fakeRefundJournal) isResolved(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved[id]
}

func (f *fakeRefundJournal) tx(ctx context.Context, fn func(q database.Execer) error) error {
	f.mu.Lock()
	snapshot := make(map[string]bool, len(f.resolved))
	for k, v := range f.resolved {
		snapshot[k] = v
	}
	f.mu.Unlock()

	if err := fn(nil); err != nil {
		f.mu.Lock()
		f.resolved = snapshot
		f.mu.Unlock()
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErrs > 0 {
		f.commitErrs--
		return errors.New("driver: bad connection")
	}
	return nil
}

type mockAlerter struct {
	mock.Mock
}

func (m *mockAlerter) Alert(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

type mockInvoker struct {
	mock.Mock
}

func (m *mockInvoker) Invoke(ctx context.Context, payload provider.Payload) (provider.Asset, error) {
	args := m.Called(ctx, payload)
	return args.Get(0).(provider.Asset), args.Error(1)
}

func noTx(ctx context.Context, fn func(q database.Execer) error) error {
	return fn(nil)
}
