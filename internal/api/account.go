package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/digkill/nexora/internal/models"
	"github.com/digkill/nexora/internal/repository"
	"github.com/digkill/nexora/internal/service"
)

type meResponse struct {
	UserID  string          `json:"user_id"`
	Plan    models.PlanTier `json:"plan"`
	Balance int64           `json:"balance"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	plan, err := s.deps.Plans.Resolve(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	balance, err := s.deps.Ledger.Balance(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{UserID: userID, Plan: plan, Balance: balance})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.deps.Executor.Catalog().List()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter repository.HistoryFilter
	if kind := q.Get("kind"); kind != "" {
		filter.Kind = models.GenerationKind(kind)
		if !filter.Kind.Valid() {
			writeError(w, http.StatusBadRequest, "kind: unsupported value")
			return
		}
	}
	var err error
	if filter.Limit, err = parseUint(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit: must be a non-negative integer")
		return
	}
	if filter.Offset, err = parseUint(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset: must be a non-negative integer")
		return
	}

	records, err := s.deps.History.List(r.Context(), userIDFrom(r.Context()), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

type redeemRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type redeemResponse struct {
	Code    string `json:"code"`
	Credits int64  `json:"credits"`
	Balance int64  `json:"balance"`
}

func (s *Server) handleRedeemPromo(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !s.decode(w, r, &req) {
		return
	}
	userID := userIDFrom(r.Context())
	promo, err := s.deps.Promos.Redeem(r.Context(), userID, req.Code)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := redeemResponse{Code: promo.Code, Credits: promo.Credits}
	if balance, err := s.deps.Ledger.Balance(r.Context(), userID); err == nil {
		resp.Balance = balance
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body error")
		return
	}
	err = s.deps.Billing.HandleStripeWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, service.ErrBillingDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrWebhookSignature), errors.Is(err, service.ErrWebhookMalformed):
		s.log.Warn("stripe webhook rejected", "err", err)
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("stripe webhook", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseUint(v string) (uint64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}
