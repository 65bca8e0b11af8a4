package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketcore/internal/cron"
	"github.com/angelmondragon/marketcore/internal/idempotency"
	"github.com/angelmondragon/marketcore/internal/intake"
	"github.com/angelmondragon/marketcore/internal/inventory"
	"github.com/angelmondragon/marketcore/internal/orders"
	"github.com/angelmondragon/marketcore/pkg/config"
	"github.com/angelmondragon/marketcore/pkg/db"
	"github.com/angelmondragon/marketcore/pkg/locks"
	"github.com/angelmondragon/marketcore/pkg/logger"
	"github.com/angelmondragon/marketcore/pkg/metrics"
	"github.com/angelmondragon/marketcore/pkg/migrate"
	"github.com/angelmondragon/marketcore/pkg/redis"
)

const serviceName = "marketcore-cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	metricsAddr := flag.String("metrics-addr", "", "optional listen address for /metrics")
	jobName := flag.String("job", "", "run only the named job once and exit")
	flag.Parse()

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
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})

	if err := run(ctx, cfg, logg, runOptions{once: *once, job: *jobName, metricsAddr: *metricsAddr}); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down gracefully")
}

type runOptions struct {
	once        bool
	job         string
	metricsAddr string
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts runOptions) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	var locker locks.Locker = locks.NoopLocker{}
	if cfg.Redis.Enabled() {
		redisClient, rerr := redis.New(ctx, cfg.Redis, logg)
		if rerr != nil {
			return fmt.Errorf("bootstrap redis: %w", rerr)
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
		// single attempt: a busy lock means another worker has this cycle
		locker, err = locks.NewRedisLocker(redisClient, cfg.Cron.LockTTL, 0)
		if err != nil {
			return fmt.Errorf("create cron locker: %w", err)
		}
	} else {
		logg.Warn(ctx, "redis not configured; run a single cron worker")
	}
	lock, err := cron.NewLockerLock(locker, lockID(cfg.App.Env))
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	jobMetrics := metrics.NewCronJobMetrics(registry)
	coreMetrics := metrics.NewCoreMetrics(registry)

	conn := dbClient.DB()
	validator, err := intake.NewValidator(intake.NewCatalog(conn), cfg.Checkout)
	if err != nil {
		return err
	}
	guard, err := idempotency.NewGuard(idempotency.NewRepository(conn))
	if err != nil {
		return err
	}
	ledger, err := inventory.NewLedger(inventory.NewRepository(conn))
	if err != nil {
		return err
	}
	ordersRepo := orders.NewRepository(conn)
	ordersSvc, err := orders.NewService(ordersRepo, dbClient, validator, guard, ledger, cfg.Checkout.PrepaidMethods,
		orders.WithMetrics(coreMetrics),
		orders.WithLogger(logg),
	)
	if err != nil {
		return err
	}

	staleJob, err := cron.NewStaleOrdersJob(cron.StaleOrdersJobParams{
		Logger:    logg,
		Repo:      ordersRepo,
		Orders:    ordersSvc,
		Metrics:   jobMetrics,
		TTL:       cfg.Cron.PendingOrderTTL,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(staleJob),
		Lock:       lock,
		Metrics:    jobMetrics,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return err
	}

	switch {
	case opts.job != "":
		return service.RunJob(ctx, opts.job)
	case opts.once:
		_, err := service.RunOnce(ctx)
		return err
	}

	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if serr := srv.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server stopped", serr)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logg.Info(logg.WithField(ctx, "interval", cfg.Cron.Interval.String()), "starting cron worker")
	return service.Run(ctx)
}

func lockID(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
