package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/ordersettle/api"
	"github.com/angelmondragon/ordersettle/api/routes"
	"github.com/angelmondragon/ordersettle/internal/address"
	"github.com/angelmondragon/ordersettle/internal/cart"
	"github.com/angelmondragon/ordersettle/internal/checkout"
	"github.com/angelmondragon/ordersettle/internal/failures"
	"github.com/angelmondragon/ordersettle/internal/orders"
	"github.com/angelmondragon/ordersettle/internal/points"
	"github.com/angelmondragon/ordersettle/internal/products"
	"github.com/angelmondragon/ordersettle/internal/stock"
	"github.com/angelmondragon/ordersettle/internal/users"
	"github.com/angelmondragon/ordersettle/internal/vouchers"
	stripewebhook "github.com/angelmondragon/ordersettle/internal/webhooks/stripe"
	"github.com/angelmondragon/ordersettle/pkg/config"
	"github.com/angelmondragon/ordersettle/pkg/db"
	"github.com/angelmondragon/ordersettle/pkg/instance"
	"github.com/angelmondragon/ordersettle/pkg/logger"
	"github.com/angelmondragon/ordersettle/pkg/metrics"
	"github.com/angelmondragon/ordersettle/pkg/migrate"
	"github.com/angelmondragon/ordersettle/pkg/pubsub"
	"github.com/angelmondragon/ordersettle/pkg/redis"
	pkgstripe "github.com/angelmondragon/ordersettle/pkg/stripe"
)

const webhookGuardScope = "stripe-webhook"

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)

	sinks := failures.Fanout{failures.NewLogSink(logg), failures.NewMetricsSink(settlementMetrics)}
	if cfg.PubSub.Enabled(cfg.GCP) {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		sink, err := failures.NewPubSubSink(pubsubClient.FailurePublisher())
		if err != nil {
			logg.Error(ctx, "failed to create failure publisher", err)
			os.Exit(1)
		}
		sinks = append(sinks, sink)
	}

	conn := dbClient.DB()
	userRepo := users.NewRepository(conn)
	productRepo := products.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)

	voucherValidator, err := vouchers.NewValidator(vouchers.NewRepository(conn))
	mustBuild(ctx, logg, "voucher validator", err)
	stockReconciler, err := stock.NewReconciler(productRepo)
	mustBuild(ctx, logg, "stock reconciler", err)
	pointsLedger, err := points.NewLedger(userRepo)
	mustBuild(ctx, logg, "points ledger", err)
	finalizer, err := checkout.NewFinalizer(stockReconciler, voucherValidator, pointsLedger, cart.NewRepository(conn))
	mustBuild(ctx, logg, "checkout finalizer", err)

	retry := db.RetryPolicy{Attempts: cfg.Checkout.RetryAttempts, BaseDelay: cfg.Checkout.RetryBaseDelay}
	deps := checkout.Dependencies{
		Tx:        dbClient,
		Users:     userRepo,
		Addresses: address.NewRepository(conn),
		Products:  productRepo,
		Orders:    orderRepo,
		Vouchers:  voucherValidator,
		Assembler: orders.NewAssembler(cfg.Checkout.ShippingFee),
		Finalizer: finalizer,
		Retry:     retry,
		Logger:    logg,
		Metrics:   settlementMetrics,
	}

	coordinator, err := checkout.NewCoordinator(deps)
	mustBuild(ctx, logg, "cash checkout", err)
	sessions, err := checkout.NewSessionService(deps, stripeClient, checkout.SessionConfig{
		Currency:   cfg.Checkout.Currency,
		SuccessURL: cfg.Checkout.SuccessURL,
		CancelURL:  cfg.Checkout.CancelURL,
	})
	mustBuild(ctx, logg, "online checkout", err)
	orderService, err := orders.NewService(orderRepo, dbClient)
	mustBuild(ctx, logg, "order service", err)

	reconciler, err := stripewebhook.NewReconciler(stripewebhook.ReconcilerParams{
		Tx:        dbClient,
		Orders:    orderRepo,
		Finalizer: finalizer,
		Failures:  sinks,
		Retry:     retry,
		Logger:    logg,
		Metrics:   settlementMetrics,
	})
	mustBuild(ctx, logg, "webhook reconciler", err)
	guard, err := stripewebhook.NewEventGuard(redisClient, cfg.Checkout.WebhookGuardTTL, webhookGuardScope)
	mustBuild(ctx, logg, "webhook guard", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
		"instance":   instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	router := routes.NewRouter(cfg, logg, routes.Dependencies{
		DB:             dbClient,
		Redis:          redisClient,
		CashCheckout:   coordinator,
		OnlineCheckout: sessions,
		Orders:         orderService,
		Reconciler:     reconciler,
		EventGuard:     guard,
		Stripe:         stripeClient,
		Metrics:        promhttp.Handler(),
	})

	if err := api.Serve(ctx, api.NewServer(addr, router), cfg.HTTP.ShutdownTimeout, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

func mustBuild(ctx context.Context, logg *logger.Logger, component string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "failed to build "+component, err)
	os.Exit(1)
}
