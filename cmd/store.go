package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

func mustCreateCheckoutService() (*config.Config, *service.CheckoutService, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	packages, err := loadCatalog(cfg.Checkout)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load package catalog")
	}

	stripeProvider := provider.NewStripeProvider(provider.StripeConfig{
		SecretKey:                 cfg.Stripe.SecretKey,
		WebhookSecret:             cfg.Stripe.WebhookSecret,
		SignatureToleranceSeconds: cfg.Stripe.SignatureToleranceSeconds,
		HTTPTimeout:               cfg.Stripe.HTTPTimeout,
		Logger:                    factory.NewModuleLogger("stripe"),
	})
	providerRegistry := provider.NewRegistry(stripeProvider)

	var (
		checkoutService *service.CheckoutService
		cleanup         func()
	)

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pool, err := openPostgresPool(cfg.Postgres)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to postgres")
		}
		checkoutService = service.NewCheckoutService(
			repository.NewPgTransactionRepository(pool),
			repository.NewPgTransactionEventRepository(pool),
			repository.NewPgWebhookReceiptRepository(pool),
			packages,
			providerRegistry,
			cfg.Checkout,
			cfg.Payments,
			cfg.App.APIKey,
		)
		cleanup = pool.Close
	case config.StoreDriverBolt:
		boltStore, err := repository.OpenBoltStore(cfg.Bolt.Path)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to open bolt store")
		}
		checkoutService = service.NewCheckoutService(
			boltStore.Transactions(),
			boltStore.Events(),
			boltStore.WebhookReceipts(),
			packages,
			providerRegistry,
			cfg.Checkout,
			cfg.Payments,
			cfg.App.APIKey,
		)
		cleanup = func() {
			if err := boltStore.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close bolt store")
			}
		}
	default:
		db, err := openMySQL(cfg.MySQL)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to database")
		}
		checkoutService = service.NewCheckoutService(
			repository.NewTransactionRepository(db),
			repository.NewTransactionEventRepository(db),
			repository.NewWebhookReceiptRepository(db),
			packages,
			providerRegistry,
			cfg.Checkout,
			cfg.Payments,
			cfg.App.APIKey,
		)
		cleanup = func() {
			if err := db.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close database")
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"store":    cfg.Store.Driver,
		"packages": len(packages.Packages()),
		"currency": packages.Currency(),
	}).Info("Checkout service initialized")

	return cfg, checkoutService, cleanup
}

func loadCatalog(cfg config.CheckoutConfig) (*catalog.Catalog, error) {
	if path := strings.TrimSpace(cfg.CatalogFile); path != "" {
		return catalog.LoadFile(path)
	}
	if cfg.Currency == "" || cfg.Currency == catalog.DefaultCurrency {
		return catalog.Default(), nil
	}
	return catalog.New(cfg.Currency, catalog.Default().Packages())
}

func openMySQL(cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openPostgresPool(cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}
