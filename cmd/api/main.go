package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketcore/api/routes"
	"github.com/angelmondragon/marketcore/internal/idempotency"
	"github.com/angelmondragon/marketcore/internal/intake"
	"github.com/angelmondragon/marketcore/internal/inventory"
	"github.com/angelmondragon/marketcore/internal/notifications"
	"github.com/angelmondragon/marketcore/internal/orders"
	"github.com/angelmondragon/marketcore/internal/payments"
	"github.com/angelmondragon/marketcore/internal/payouts"
	"github.com/angelmondragon/marketcore/pkg/config"
	"github.com/angelmondragon/marketcore/pkg/db"
	"github.com/angelmondragon/marketcore/pkg/locks"
	"github.com/angelmondragon/marketcore/pkg/logger"
	"github.com/angelmondragon/marketcore/pkg/metrics"
	"github.com/angelmondragon/marketcore/pkg/migrate"
	"github.com/angelmondragon/marketcore/pkg/pubsub"
	"github.com/angelmondragon/marketcore/pkg/redis"
)

const (
	serviceName     = "marketcore-api"
	lockWait        = 2 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	closers := []func() error{dbClient.Close}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	var (
		redisClient *redis.Client
		locker      locks.Locker = locks.NoopLocker{}
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		closers = append(closers, redisClient.Close)
		locker, err = locks.NewRedisLocker(redisClient, cfg.Payout.LockTTL, lockWait)
		if err != nil {
			logg.Error(ctx, "failed to create payout locker", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(ctx, "redis not configured; header replay and payout locks disabled")
	}

	var notifier notifications.Notifier = notifications.NewLogNotifier(logg)
	if cfg.PubSub.Enabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		closers = append(closers, psClient.Close)
		psNotifier, err := notifications.NewPubSubNotifier(psClient.NotificationPublisher(), logg)
		if err != nil {
			logg.Error(ctx, "failed to create pubsub notifier", err)
			os.Exit(1)
		}
		closers = append(closers, psNotifier.Close)
		notifier = psNotifier
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	coreMetrics := metrics.NewCoreMetrics(registry)

	conn := dbClient.DB()
	validator, err := intake.NewValidator(intake.NewCatalog(conn), cfg.Checkout)
	mustBuild(ctx, logg, "order validator", err)
	guard, err := idempotency.NewGuard(idempotency.NewRepository(conn))
	mustBuild(ctx, logg, "idempotency guard", err)
	ledger, err := inventory.NewLedger(inventory.NewRepository(conn))
	mustBuild(ctx, logg, "inventory ledger", err)

	ordersSvc, err := orders.NewService(orders.NewRepository(conn), dbClient, validator, guard, ledger, cfg.Checkout.PrepaidMethods,
		orders.WithNotifier(notifier),
		orders.WithRefunder(payments.NewLogRefunder(logg)),
		orders.WithMetrics(coreMetrics),
		orders.WithLogger(logg),
	)
	mustBuild(ctx, logg, "orders service", err)

	payoutsSvc, err := payouts.NewService(payouts.NewRepository(conn), dbClient, locker, cfg.Payout.Methods,
		payouts.WithNotifier(notifier),
		payouts.WithMetrics(coreMetrics),
		payouts.WithLogger(logg),
	)
	mustBuild(ctx, logg, "payouts service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, registry, ordersSvc, payoutsSvc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "graceful shutdown failed", err)
			exitCode = 1
		}
		cancel()
	}

	if err := closeAll(closers); err != nil {
		logg.Error(context.Background(), "error releasing resources", err)
	}
	logg.Info(context.Background(), "api server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func mustBuild(ctx context.Context, logg *logger.Logger, what string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "failed to create "+what, err)
	os.Exit(1)
}

// closeAll releases resources in reverse order of acquisition.
func closeAll(closers []func() error) error {
	var errs error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, closers[i]())
	}
	return errs
}
