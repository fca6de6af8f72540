// Package api serves the public generation API.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"

	"github.com/digkill/nexora/internal/models"
	"github.com/digkill/nexora/internal/provider"
	"github.com/digkill/nexora/internal/repository"
	"github.com/digkill/nexora/internal/service"
)

type Executor interface {
	Execute(ctx context.Context, req service.Request, invoker provider.Invoker) (*service.Result, error)
	Catalog() *service.Catalog
}

type PlanResolver interface {
	Resolve(ctx context.Context, userID string) (models.PlanTier, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
}

type HistoryLister interface {
	List(ctx context.Context, userID string, filter repository.HistoryFilter) ([]models.GenerationRecord, error)
}

type PromoRedeemer interface {
	Redeem(ctx context.Context, userID string, code string) (*models.PromoCode, error)
}

type WebhookHandler interface {
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators behind the public routes. Invokers is keyed by the
// catalog provider name.
type Deps struct {
	Executor    Executor
	Invokers    map[string]provider.Invoker
	Plans       PlanResolver
	Ledger      BalanceReader
	History     HistoryLister
	Promos      PromoRedeemer
	Billing     WebhookHandler
	DB          Pinger
	Metrics     http.Handler
	Auth        *Authenticator
	Limiter     *RateLimiter
	CORSOrigins []string
	Log         *slog.Logger
}

type Server struct {
	addr     string
	deps     Deps
	log      *slog.Logger
	validate *validator.Validate
	handler  http.Handler
}

func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		addr:     addr,
		deps:     deps,
		log:      deps.Log,
		validate: newValidator(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/billing/stripe/webhook", s.handleStripeWebhook)

		r.Group(func(protected chi.Router) {
			protected.Use(deps.Auth.Middleware)
			protected.Get("/me", s.handleMe)
			protected.Get("/models", s.handleModels)
			protected.Get("/history", s.handleHistory)
			protected.Post("/promo/redeem", s.handleRedeemPromo)

			protected.Group(func(metered chi.Router) {
				metered.Use(deps.Limiter.Middleware)
				metered.Post("/generate/image", s.handleGenerateImage)
				metered.Post("/generate/video", s.handleGenerateVideo)
				metered.Post("/generate/video/director", s.handleGenerateDirector)
				metered.Post("/assistant/chat", s.handleChat)
			})
		})
	})

	s.handler = withCORS(r, deps.CORSOrigins)
	return s
}

// withCORS allows browser calls from the listed origins only. An empty list
// means no cross-origin access; rs/cors would otherwise treat it as "*".
// Auth travels in the Authorization header, so credentials stay disabled.
func withCORS(h http.Handler, origins []string) http.Handler {
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 {
		return h
	}
	return cors.New(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Retry-After", "X-Request-ID"},
	}).Handler(h)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Video generations hold the connection while the provider renders.
		WriteTimeout: 15 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.PingContext(ctx); err != nil {
			s.log.Warn("readiness check failed", "err", err)
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
