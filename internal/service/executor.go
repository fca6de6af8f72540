package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/metrics"
	"github.com/digkill/nexora/internal/models"
	"github.com/digkill/nexora/internal/provider"
)

type HistoryStore interface {
	Insert(ctx context.Context, rec models.GenerationRecord) error
}

// RefundJournal records a refund before it is applied. Every attempt resolves
// the same row, so a retry after an ambiguous commit cannot credit twice.
type RefundJournal interface {
	Enqueue(ctx context.Context, refund models.PendingRefund) error
	Resolve(ctx context.Context, q database.Execer, id string) (bool, error)
	RecordFailure(ctx context.Context, id string, cause string) error
}

type Alerter interface {
	Alert(ctx context.Context, text string) error
}

type ExecutorOptions struct {
	InvokeTimeouts      map[models.GenerationKind]time.Duration
	RefundAttempts      int
	RefundBackoff       time.Duration
	HistoryWriteTimeout time.Duration
	// InvokeRetries is how many extra calls a retryable provider error gets
	// within the same invoke timeout.
	InvokeRetries      int
	InvokeRetryBackoff time.Duration
}

func (o ExecutorOptions) invokeTimeout(kind models.GenerationKind) time.Duration {
	if d, ok := o.InvokeTimeouts[kind]; ok && d > 0 {
		return d
	}
	return 2 * time.Minute
}

// Request is one metered generation call.
type Request struct {
	UserID  string
	Kind    models.GenerationKind
	ModelID string
	Payload provider.Payload
}

type Result struct {
	Asset     provider.Asset
	Model     Model
	Cost      int64
	HistoryID string
}

// Executor runs the guarded call: resolve plan, gate, deduct, invoke, then keep
// the charge on success or refund it on failure.
type Executor struct {
	plans   *PlanResolver
	gate    *TierGate
	ledger  *Ledger
	history HistoryStore
	refunds RefundJournal
	tx      TxFunc
	alerts  Alerter
	metrics *metrics.Metrics
	log     *slog.Logger
	opts    ExecutorOptions
}

func NewExecutor(plans *PlanResolver, gate *TierGate, ledger *Ledger, history HistoryStore, refunds RefundJournal, tx TxFunc, alerts Alerter, m *metrics.Metrics, log *slog.Logger, opts ExecutorOptions) *Executor {
	if opts.RefundAttempts <= 0 {
		opts.RefundAttempts = 1
	}
	if opts.HistoryWriteTimeout <= 0 {
		opts.HistoryWriteTimeout = 5 * time.Second
	}
	if opts.InvokeRetries < 0 {
		opts.InvokeRetries = 0
	}
	return &Executor{
		plans:   plans,
		gate:    gate,
		ledger:  ledger,
		history: history,
		refunds: refunds,
		tx:      tx,
		alerts:  alerts,
		metrics: m,
		log:     log,
		opts:    opts,
	}
}

func (e *Executor) Catalog() *Catalog {
	return e.gate.Catalog()
}

// Execute never leaves a failed generation charged: after the deduction the call
// runs detached from ctx cancellation and ends in either a kept charge or a refund.
func (e *Executor) Execute(ctx context.Context, req Request, invoker provider.Invoker) (*Result, error) {
	ctx, span := otel.Tracer("Executor").Start(ctx, "Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", req.UserID),
		attribute.String("generation.kind", string(req.Kind)),
	)

	modelID, err := e.validate(&req)
	if err != nil {
		return nil, e.reject(span, req, err)
	}
	span.SetAttributes(attribute.String("generation.model", modelID))

	tier, err := e.plans.Resolve(ctx, req.UserID)
	if err != nil {
		return nil, e.reject(span, req, err)
	}

	model, err := e.gate.CheckAccess(tier, modelID)
	if err != nil {
		return nil, e.reject(span, req, err)
	}
	req.Payload.Model = model.ProviderModel
	req.Payload.Kind = model.Kind

	balance, err := e.ledger.Balance(ctx, req.UserID)
	if err != nil {
		return nil, e.reject(span, req, err)
	}
	if balance < model.Cost {
		return nil, e.reject(span, req, ErrInsufficientCredits)
	}
	if invoker == nil {
		return nil, e.reject(span, req, fmt.Errorf("%w: %s via %s", ErrModelUnavailable, model.ID, model.Provider))
	}

	work := context.WithoutCancel(ctx)
	if err := e.ledger.Deduct(work, req.UserID, model.Cost); err != nil {
		if errors.Is(err, ErrLedgerWrite) {
			e.log.Error("deduct credits failed", "user_id", req.UserID, "model", model.ID, "cost", model.Cost, "err", err)
		}
		return nil, e.reject(span, req, err)
	}

	asset, err := e.invoke(work, model, req.Payload, invoker)
	if err != nil {
		refunded := e.refund(work, req.UserID, model, err)
		e.metrics.Outcome(string(model.Kind), model.ID, "failure")
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider call failed")
		e.log.Warn("generation failed", "user_id", req.UserID, "model", model.ID, "refunded", refunded, "err", err)
		return nil, &ExecutionError{Cause: err, Refunded: refunded}
	}

	historyID := uuid.NewString()
	e.recordHistory(work, models.GenerationRecord{
		ID:        historyID,
		UserID:    req.UserID,
		Kind:      model.Kind,
		ModelID:   model.ID,
		Prompt:    req.Payload.Summary(),
		OutputURL: asset.Ref(),
		Cost:      model.Cost,
	})

	e.metrics.Outcome(string(model.Kind), model.ID, "success")
	e.metrics.Charged(string(model.Kind), model.Cost)
	span.SetStatus(codes.Ok, "generation succeeded")

	return &Result{Asset: asset, Model: model, Cost: model.Cost, HistoryID: historyID}, nil
}

func (e *Executor) validate(req *Request) (string, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return "", &ValidationError{Field: "user", Reason: "missing user id"}
	}
	if !req.Kind.Valid() {
		return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("unsupported kind %q", req.Kind)}
	}
	if err := validatePayload(req.Kind, req.Payload); err != nil {
		return "", err
	}

	modelID, err := e.gate.Catalog().Resolve(req.Kind, strings.TrimSpace(req.ModelID))
	if err != nil {
		return "", err
	}
	if model, ok := e.gate.Catalog().Lookup(modelID); ok && model.Kind != req.Kind {
		return "", &ValidationError{Field: "model", Reason: fmt.Sprintf("%s is not a %s model", modelID, req.Kind)}
	}
	return modelID, nil
}

func validatePayload(kind models.GenerationKind, p provider.Payload) error {
	hasPrompt := strings.TrimSpace(p.Prompt) != ""
	hasImage := false
	for _, u := range p.ImageURLs {
		if strings.TrimSpace(u) != "" {
			hasImage = true
			break
		}
	}

	switch kind {
	case models.KindImage:
		if !hasPrompt {
			return &ValidationError{Field: "prompt", Reason: "prompt is required"}
		}
	case models.KindVideo, models.KindDirector:
		if !hasPrompt && !hasImage {
			return &ValidationError{Field: "prompt", Reason: "prompt or image_url is required"}
		}
	case models.KindChat:
		for _, m := range p.ChatMessages() {
			if m.Role == "user" && strings.TrimSpace(m.Content) != "" {
				return nil
			}
		}
		return &ValidationError{Field: "messages", Reason: "at least one user message is required"}
	}
	return nil
}

// invoke calls the provider under the kind's timeout. Panics, errors and empty
// assets all count as failures. Retryable provider errors get InvokeRetries more
// calls inside the same deadline.
func (e *Executor) invoke(ctx context.Context, model Model, payload provider.Payload, invoker provider.Invoker) (asset provider.Asset, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.invokeTimeout(model.Kind))
	defer cancel()

	ctx, span := otel.Tracer("Executor").Start(ctx, "Invoke")
	span.SetAttributes(attribute.String("provider", model.Provider), attribute.String("provider.model", model.ProviderModel))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider %s panicked: %v", model.Provider, r)
		}
		outcome := "success"
		if err != nil {
			outcome = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, "invoke failed")
		}
		e.metrics.Invoke(model.Provider, outcome, time.Since(start))
		span.End()
	}()

	for attempt := 1; ; attempt++ {
		asset, err = invoker.Invoke(ctx, payload)
		if err == nil || attempt > e.opts.InvokeRetries || !provider.IsRetryable(err) {
			break
		}
		e.log.Warn("provider call failed, retrying", "provider", model.Provider, "model", model.ID, "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return provider.Asset{}, err
		case <-time.After(e.opts.InvokeRetryBackoff * time.Duration(attempt)):
		}
	}
	if err != nil {
		return provider.Asset{}, err
	}
	if asset.Empty() {
		return provider.Asset{}, provider.ErrEmptyAsset
	}
	return asset, nil
}

// refund journals the refund, then applies it against that journal row with
// retries. When every attempt fails the row stays open for the reconciler and
// it reports false.
func (e *Executor) refund(ctx context.Context, userID string, model Model, cause error) bool {
	pending := models.PendingRefund{
		ID:      uuid.NewString(),
		UserID:  userID,
		Amount:  model.Cost,
		ModelID: model.ID,
		Reason:  cause.Error(),
	}
	if e.refunds == nil || e.tx == nil {
		return e.refundUnjournaled(ctx, pending, errors.New("refund journal not configured"))
	}
	if err := e.refunds.Enqueue(ctx, pending); err != nil {
		return e.refundUnjournaled(ctx, pending, err)
	}

	var lastErr error
	for attempt := 1; attempt <= e.opts.RefundAttempts; attempt++ {
		if _, lastErr = applyRefund(ctx, e.tx, e.refunds, e.ledger, pending); lastErr == nil {
			e.metrics.Refund("applied")
			return true
		}
		e.log.Warn("refund attempt failed", "refund_id", pending.ID, "user_id", userID, "amount", model.Cost, "attempt", attempt, "err", lastErr)
		if attempt < e.opts.RefundAttempts && e.opts.RefundBackoff > 0 {
			time.Sleep(e.opts.RefundBackoff * time.Duration(attempt))
		}
	}

	if err := e.refunds.RecordFailure(ctx, pending.ID, lastErr.Error()); err != nil {
		e.log.Warn("record refund failure", "refund_id", pending.ID, "err", err)
	}
	e.metrics.Refund("queued")
	e.log.Error("refund queued for reconciliation", "refund_id", pending.ID, "user_id", userID, "amount", model.Cost, "err", lastErr)
	e.alert(ctx, pending.ID, fmt.Sprintf("Refund queued: %d credits for user %s (%s). Refund error: %v", model.Cost, userID, model.ID, lastErr))
	return false
}

// refundUnjournaled makes one plain ledger refund when no journal row exists.
// It is not retried: without a row an ambiguous failure cannot be told apart
// from a committed credit.
func (e *Executor) refundUnjournaled(ctx context.Context, p models.PendingRefund, journalErr error) bool {
	err := e.ledger.Refund(ctx, p.UserID, p.Amount)
	if err == nil {
		e.metrics.Refund("applied")
		e.log.Warn("refund applied without journal entry", "refund_id", p.ID, "user_id", p.UserID, "amount", p.Amount, "journal_err", journalErr)
		return true
	}
	e.metrics.Refund("lost")
	e.log.Error("refund lost, manual review required",
		"refund_id", p.ID, "user_id", p.UserID, "amount", p.Amount, "model", p.ModelID,
		"refund_err", err, "journal_err", journalErr)
	e.alert(ctx, p.ID, fmt.Sprintf("Refund lost: %d credits for user %s (%s). Refund error: %v", p.Amount, p.UserID, p.ModelID, err))
	return false
}

func (e *Executor) alert(ctx context.Context, refundID, text string) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Alert(ctx, text); err != nil {
		e.log.Warn("send refund alert", "refund_id", refundID, "err", err)
	}
}

func (e *Executor) recordHistory(ctx context.Context, rec models.GenerationRecord) {
	if e.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.HistoryWriteTimeout)
	defer cancel()
	if err := e.history.Insert(ctx, rec); err != nil {
		e.log.Warn("failed to record generation history", "user_id", rec.UserID, "model", rec.ModelID, "history_id", rec.ID, "err", err)
	}
}

func (e *Executor) reject(span trace.Span, req Request, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "rejected")
	model := "unknown"
	if _, ok := e.gate.Catalog().Lookup(req.ModelID); ok {
		model = req.ModelID
	}
	e.metrics.Outcome(string(req.Kind), model, rejectOutcome(err))
	return err
}

func rejectOutcome(err error) string {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownModel):
		return "invalid"
	case errors.Is(err, ErrPlanRequired):
		return "plan_required"
	case errors.Is(err, ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, ErrModelUnavailable):
		return "provider_unavailable"
	default:
		return "unavailable"
	}
}
