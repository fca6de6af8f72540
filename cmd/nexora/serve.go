package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/digkill/nexora/internal/admin"
	"github.com/digkill/nexora/internal/api"
	"github.com/digkill/nexora/internal/config"
	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/metrics"
	"github.com/digkill/nexora/internal/models"
	"github.com/digkill/nexora/internal/notify"
	"github.com/digkill/nexora/internal/provider"
	"github.com/digkill/nexora/internal/provider/gemini"
	"github.com/digkill/nexora/internal/provider/higgsfield"
	"github.com/digkill/nexora/internal/provider/kie"
	"github.com/digkill/nexora/internal/provider/openai"
	"github.com/digkill/nexora/internal/provider/replicate"
	"github.com/digkill/nexora/internal/service"
	"github.com/digkill/nexora/internal/storage"
)

const refundBackoff = 200 * time.Millisecond

func newServeCommand(cmdCtx *commandContext) *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the public API, the admin panel and the refund reconciler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmdCtx, skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply database migrations on startup")
	return cmd
}

func serve(ctx context.Context, cmdCtx *commandContext, skipMigrations bool) error {
	cfg := cmdCtx.config
	log := cmdCtx.log

	db, dialect, err := cmdCtx.ensureDB()
	if err != nil {
		return fmt.Errorf("database connect: %w", err)
	}
	if !skipMigrations {
		if err := database.Migrate(ctx, db, dialect); err != nil {
			return fmt.Errorf("database migrate: %w", err)
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	st := newStores(db, dialect)
	tx := service.SQLTx(db)

	plans := service.NewPlanResolver(st.subscriptions, cfg.PlanCacheTTL, log)
	ledger := service.NewLedger(st.credits)
	gate := service.NewTierGate(service.DefaultCatalog())
	promos := service.NewPromoService(st.promos, ledger, tx)

	var alerts service.Alerter
	if cfg.AlertsEnabled() {
		tg, err := notify.NewTelegramAlerter(cfg.TelegramBotToken, cfg.TelegramAlertChatID, log)
		if err != nil {
			return err
		}
		alerts = tg
	}

	executor := service.NewExecutor(plans, gate, ledger, st.history, st.refunds, tx, alerts, m, log, service.ExecutorOptions{
		InvokeTimeouts: map[models.GenerationKind]time.Duration{
			models.KindImage:    cfg.ImageInvokeTimeout,
			models.KindVideo:    cfg.VideoInvokeTimeout,
			models.KindDirector: cfg.VideoInvokeTimeout,
			models.KindChat:     cfg.ChatInvokeTimeout,
		},
		RefundAttempts:      cfg.RefundAttempts,
		RefundBackoff:       refundBackoff,
		HistoryWriteTimeout: cfg.HistoryWriteTimeout,
		InvokeRetries:       cfg.ProviderRetries,
		InvokeRetryBackoff:  cfg.PollInterval,
	})

	invokers, err := buildInvokers(ctx, cfg, cmdCtx)
	if err != nil {
		return err
	}

	auth, err := api.NewAuthenticator(cfg.AuthJWTSecret, cfg.AuthJWTPublicKey, cfg.AuthJWTIssuer)
	if err != nil {
		return err
	}

	apiServer := api.NewServer(cfg.ListenAddr, api.Deps{
		Executor:    executor,
		Invokers:    invokers,
		Plans:       plans,
		Ledger:      ledger,
		History:     st.history,
		Promos:      promos,
		Billing:     service.NewBillingService(st.subscriptions, st.payments, ledger, plans, tx, cfg.StripeWebhookSecret, log),
		DB:          db,
		Metrics:     promhttp.Handler(),
		Auth:        auth,
		Limiter:     api.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		CORSOrigins: cfg.CORSAllowedOrigins,
		Log:         log,
	})

	reconciler := cmdCtx.newReconciler(db, st, m)
	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, log, admin.Services{
		Ledger:        ledger,
		Promos:        promos,
		Subscriptions: st.subscriptions,
		Plans:         plans,
		Refunds:       st.refunds,
		Reconciler:    reconciler,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return apiServer.Run(gctx) })
	g.Go(func() error { return adminServer.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })

	log.Info("nexora started", "env", cfg.Env, "db", dialect.Name, "providers", len(invokers))
	return g.Wait()
}

// buildInvokers registers an adapter for every provider with credentials,
// mirrored into S3 when a bucket is configured.
func buildInvokers(ctx context.Context, cfg config.Config, cmdCtx *commandContext) (map[string]provider.Invoker, error) {
	log := cmdCtx.log
	invokers := make(map[string]provider.Invoker)

	if cfg.OpenAIAPIKey != "" {
		invokers[service.ProviderOpenAI] = openai.NewClient(cfg, log)
	}
	if cfg.KIEAPIKey != "" {
		invokers[service.ProviderKIE] = kie.NewClient(cfg, log)
	}
	if cfg.ReplicateAPIToken != "" {
		invokers[service.ProviderReplicate] = replicate.NewClient(cfg, log)
	}
	if cfg.HiggsfieldAPIKey != "" {
		invokers[service.ProviderHiggsfield] = higgsfield.NewClient(cfg, log)
	}
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, log)
		if err != nil {
			return nil, err
		}
		invokers[service.ProviderGemini] = client
	}

	if cfg.S3Enabled() {
		uploader, err := storage.NewUploader(cfg)
		if err != nil {
			return nil, fmt.Errorf("storage uploader: %w", err)
		}
		httpClient := &http.Client{}
		for name, inv := range invokers {
			if name == service.ProviderGemini {
				continue
			}
			invokers[name] = storage.NewMirror(inv, uploader, httpClient, log)
		}
		log.Info("asset mirroring enabled", "bucket", cfg.S3Bucket)
	}
	return invokers, nil
}
