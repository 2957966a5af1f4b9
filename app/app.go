package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/shopcoreapp/shopcore/internal/cache"
	"github.com/shopcoreapp/shopcore/internal/config"
	"github.com/shopcoreapp/shopcore/internal/crypto"
	"github.com/shopcoreapp/shopcore/internal/db"
	"github.com/shopcoreapp/shopcore/internal/events"
	"github.com/shopcoreapp/shopcore/internal/lifecycle"
	"github.com/shopcoreapp/shopcore/internal/merchant"
	"github.com/shopcoreapp/shopcore/internal/observability"
	"github.com/shopcoreapp/shopcore/internal/payments"
	"github.com/shopcoreapp/shopcore/internal/services"
	"github.com/shopcoreapp/shopcore/internal/shipping"
	"github.com/shopcoreapp/shopcore/internal/tax"
	"github.com/shopcoreapp/shopcore/internal/totals"
)

type App struct {
	Config        *config.Config
	Merchant      *merchant.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Publisher     events.Publisher

	Checkout *services.CheckoutService
	Orders   *services.OrderService
	Payments *services.PaymentService
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg)

	merchantConfig, err := merchant.NewParser().ParseFile(cfg.MerchantConfigPath)
	if err != nil {
		return nil, err
	}
	if err := merchant.NewValidator().Validate(merchantConfig); err != nil {
		return nil, fmt.Errorf("invalid merchant configuration: %w", err)
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	orderStore := db.NewOrderStore(database)
	transactionStore := db.NewTransactionStore(database)
	moduleConfigStore := db.NewModuleConfigStore(database, encryptor)

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, 256, logger.With("component", "kafka_publisher"))
	}

	httpClient := observability.NewHTTPClient(cfg.QuoteModuleTimeout)
	registry := shipping.NewRegistry()
	modules := []shipping.Module{
		shipping.NewFlatRateModule(),
		shipping.NewPerItemModule(),
		shipping.NewWeightTableModule(),
		shipping.NewCarrierAPIModule(httpClient),
	}
	for _, module := range modules {
		if err := registry.Register(module); err != nil {
			closeCacheProvider(logger, cacheProvider)
			database.Close()
			return nil, fmt.Errorf("failed to register shipping module: %w", err)
		}
	}

	orchestrator := shipping.NewOrchestrator(
		registry,
		moduleConfigStore,
		cfg.QuoteModuleTimeout,
		logger.With("component", "shipping_orchestrator"),
	)

	calculator := totals.NewCalculator(
		tax.NewTableCalculator(),
		totals.Config{
			TaxAfterDiscount:     merchantConfig.Merchant.TaxesAfterDiscount(),
			AllowZeroTaxFallback: merchantConfig.Merchant.AllowZeroTaxFallback,
		},
		logger.With("component", "totals_calculator"),
	)

	gateway, err := payments.NewStripeGateway(cfg.StripeSecretKey)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize payment gateway: %w", err)
	}
	sequencer := payments.NewSequencer(transactionStore, gateway, cfg.RefundWindow(), logger.With("component", "payment_sequencer"))
	machine := lifecycle.NewMachine()

	checkoutService := services.NewCheckoutService(
		orchestrator,
		calculator,
		cacheProvider,
		cfg.QuoteCacheTTL,
		logger.With("component", "checkout_service"),
	)
	orderService := services.NewOrderService(orderStore, machine, publisher, logger.With("component", "order_service"))
	paymentService := services.NewPaymentService(orderStore, sequencer, machine, publisher, logger.With("component", "payment_service"))

	return &App{
		Config:        cfg,
		Merchant:      merchantConfig,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		Publisher:     publisher,
		Checkout:      checkoutService,
		Orders:        orderService,
		Payments:      paymentService,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil && a.Logger != nil {
			a.Logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	case "text", "":
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level: cfg.LogLevel,
		}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel}))
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
