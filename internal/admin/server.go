package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/nexora/internal/models"
	"github.com/digkill/nexora/internal/service"
)

type CreditLedger interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Grant(ctx context.Context, userID string, amount int64) error
}

type PromoManager interface {
	List(ctx context.Context) ([]models.PromoCode, error)
	GetByID(ctx context.Context, id int64) (*models.PromoCode, error)
	Create(ctx context.Context, code string, credits int64, maxUses int) (*models.PromoCode, error)
	Update(ctx context.Context, promo *models.PromoCode) (*models.PromoCode, error)
	Delete(ctx context.Context, id int64) error
}

type SubscriptionWriter interface {
	Upsert(ctx context.Context, userID string, plan models.PlanTier, status models.SubscriptionStatus) error
}

type PlanCache interface {
	Forget(userID string)
}

type RefundLister interface {
	ListOpen(ctx context.Context, limit uint64) ([]models.PendingRefund, error)
}

type Reconciler interface {
	RunOnce(ctx context.Context) (int, error)
}

type Services struct {
	Ledger        CreditLedger
	Promos        PromoManager
	Subscriptions SubscriptionWriter
	Plans         PlanCache
	Refunds       RefundLister
	Reconciler    Reconciler
}

type Server struct {
	addr     string
	username string
	password string
	log      *slog.Logger
	svc      Services
	router   *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, svc Services) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     addr,
		username: username,
		password: password,
		log:      log,
		svc:      svc,
		router:   r,
	}
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Get("/credits/{user}", s.handleGetBalance)
		protected.Post("/credits/{user}", s.handleGrantCredits)
		protected.Put("/subscriptions/{user}", s.handleSetSubscription)
		protected.Route("/promo-codes", func(r chi.Router) {
			r.Get("/", s.handleListPromos)
			r.Post("/", s.handleCreatePromo)
			r.Put("/{id}", s.handleUpdatePromo)
			r.Delete("/{id}", s.handleDeletePromo)
		})
		protected.Get("/refunds/pending", s.handleListPendingRefunds)
		protected.Post("/refunds/reconcile", s.handleReconcile)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

type balanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "user"))
	balance, err := s.svc.Ledger.Balance(r.Context(), userID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceResponse{UserID: userID, Balance: balance})
}

type grantRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) handleGrantCredits(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "user"))
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	if err := s.svc.Ledger.Grant(ctx, userID, req.Amount); err != nil {
		s.internalError(w, err)
		return
	}
	s.log.Info("admin credit grant", "user_id", userID, "amount", req.Amount, "reason", req.Reason)

	balance, err := s.svc.Ledger.Balance(ctx, userID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceResponse{UserID: userID, Balance: balance})
}

type subscriptionRequest struct {
	Plan   string `json:"plan"`
	Status string `json:"status"`
}

func (s *Server) handleSetSubscription(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "user"))
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	plan, ok := models.ParsePlanTier(req.Plan)
	if !ok {
		http.Error(w, "plan must be Free, Growth or Pro", http.StatusBadRequest)
		return
	}
	status := models.SubscriptionStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	switch status {
	case models.StatusActive, models.StatusPastDue, models.StatusTrialing, models.StatusCancelled, models.StatusNone:
	default:
		http.Error(w, "unsupported status", http.StatusBadRequest)
		return
	}
	if err := s.svc.Subscriptions.Upsert(r.Context(), userID, plan, status); err != nil {
		s.internalError(w, err)
		return
	}
	s.svc.Plans.Forget(userID)
	s.writeJSON(w, http.StatusOK, map[string]string{"user_id": userID, "plan": string(plan), "status": string(status)})
}

func (s *Server) handleListPromos(w http.ResponseWriter, r *http.Request) {
	promos, err := s.svc.Promos.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, promos)
}

func (s *Server) handleCreatePromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	promo, err := s.svc.Promos.Create(r.Context(), req.Code, req.Credits, req.MaxUses)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, promo)
}

func (s *Server) handleUpdatePromo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req promoUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	existing, err := s.svc.Promos.GetByID(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if existing == nil {
		http.Error(w, "promo not found", http.StatusNotFound)
		return
	}
	if req.Code != nil {
		existing.Code = *req.Code
	}
	if req.Credits != nil {
		existing.Credits = *req.Credits
	}
	if req.MaxUses != nil {
		existing.MaxUses = *req.MaxUses
	}
	if req.Uses != nil {
		existing.Uses = *req.Uses
	}
	promo, err := s.svc.Promos.Update(r.Context(), existing)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, promo)
}

func (s *Server) handleDeletePromo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.svc.Promos.Delete(r.Context(), id); err != nil {
		s.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPendingRefunds(w http.ResponseWriter, r *http.Request) {
	limit := uint64(100)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || n == 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	refunds, err := s.svc.Refunds.ListOpen(r.Context(), limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, refunds)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	applied, err := s.svc.Reconciler.RunOnce(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"applied": applied})
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="nexora-admin"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// serviceError answers validation and promo conflicts with 4xx, everything else with 500.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrPromoInvalid):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.internalError(w, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

type promoRequest struct {
	Code    string `json:"code"`
	Credits int64  `json:"credits"`
	MaxUses int    `json:"max_uses"`
}

type promoUpdateRequest struct {
	Code    *string `json:"code"`
	Credits *int64  `json:"credits"`
	MaxUses *int    `json:"max_uses"`
	Uses    *int    `json:"uses"`
}
