package main

import (
	"database/sql"
	"log/slog"
	"sync"

	"github.com/digkill/nexora/internal/config"
	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/metrics"
	"github.com/digkill/nexora/internal/repository"
	"github.com/digkill/nexora/internal/service"
	"github.com/digkill/nexora/pkg/logger"
)

// commandContext loads configuration and the database once per invocation.
type commandContext struct {
	configOnce sync.Once
	config     config.Config
	log        *slog.Logger
	configErr  error

	dbOnce  sync.Once
	db      *sql.DB
	dialect database.Dialect
	dbErr   error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.log = logger.New(cfg.LogLevel)
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureDB() (*sql.DB, database.Dialect, error) {
	c.dbOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.dbErr = err
			return
		}
		c.db, c.dialect, c.dbErr = database.Connect(cfg)
	})
	return c.db, c.dialect, c.dbErr
}

func (c *commandContext) close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// stores groups the SQL repositories over one connection pool.
type stores struct {
	subscriptions *repository.SubscriptionRepository
	credits       *repository.CreditRepository
	history       *repository.GenerationRepository
	refunds       *repository.RefundRepository
	promos        *repository.PromoRepository
	payments      *repository.PaymentRepository
}

func newStores(db *sql.DB, dialect database.Dialect) stores {
	return stores{
		subscriptions: repository.NewSubscriptionRepository(db, dialect),
		credits:       repository.NewCreditRepository(db, dialect),
		history:       repository.NewGenerationRepository(db, dialect),
		refunds:       repository.NewRefundRepository(db, dialect),
		promos:        repository.NewPromoRepository(db, dialect),
		payments:      repository.NewPaymentRepository(db, dialect),
	}
}

func (c *commandContext) newReconciler(db *sql.DB, st stores, m *metrics.Metrics) *service.Reconciler {
	return service.NewReconciler(st.refunds, service.NewLedger(st.credits), service.SQLTx(db), m, c.log,
		c.config.ReconcileBatchSize, c.config.ReconcileInterval)
}
