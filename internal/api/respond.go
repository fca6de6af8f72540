package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/digkill/nexora/internal/service"
)

type errorResponse struct {
	Error    string `json:"error"`
	Refunded *bool  `json:"refunded,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		execErr  *service.ExecutionError
		planErr  *service.PlanRequiredError
		validErr *service.ValidationError
	)
	switch {
	case errors.As(err, &execErr):
		refunded := execErr.Refunded
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "generation failed", Refunded: &refunded})
	case errors.As(err, &planErr):
		writeError(w, http.StatusForbidden, planErr.Error())
	case errors.Is(err, service.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, service.ErrInsufficientCredits.Error())
	case errors.As(err, &validErr):
		writeError(w, http.StatusBadRequest, validErr.Error())
	case errors.Is(err, service.ErrUnknownModel), errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPromoInvalid):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPromoAlreadyRedeemed), errors.Is(err, service.ErrPromoExhausted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrModelUnavailable):
		writeError(w, http.StatusServiceUnavailable, service.ErrModelUnavailable.Error())
	case errors.Is(err, service.ErrPlanUnavailable), errors.Is(err, service.ErrLedgerUnavailable):
		s.log.Warn("dependency unavailable", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		s.log.Error("handler error", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// validationMessage flattens validator errors into one field: reason line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + ": is required"
	case "max":
		return fe.Field() + ": must be at most " + fe.Param()
	case "min":
		return fe.Field() + ": must be at least " + fe.Param()
	case "oneof":
		return fe.Field() + ": must be one of " + fe.Param()
	case "url", "http_url":
		return fe.Field() + ": must be a valid URL"
	default:
		return fe.Field() + ": failed " + fe.Tag() + " check"
	}
}
