package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketcore/api/controllers"
	ordercontrollers "github.com/angelmondragon/marketcore/api/controllers/orders"
	payoutcontrollers "github.com/angelmondragon/marketcore/api/controllers/payouts"
	"github.com/angelmondragon/marketcore/api/middleware"
	"github.com/angelmondragon/marketcore/internal/orders"
	"github.com/angelmondragon/marketcore/internal/payouts"
	"github.com/angelmondragon/marketcore/pkg/config"
	"github.com/angelmondragon/marketcore/pkg/db"
	"github.com/angelmondragon/marketcore/pkg/logger"
	"github.com/angelmondragon/marketcore/pkg/redis"
)

// NewRouter mounts the health probes, the metrics endpoint and the versioned
// API. redisClient may be nil, which disables header-based replay.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	ordersSvc orders.Service,
	payoutsSvc payouts.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	readiness := map[string]controllers.Pinger{"db": dbP}
	var replayStore redis.IdempotencyStore
	if redisClient != nil {
		readiness["redis"] = redisClient
		replayStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(replayStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
			r.Post("/{orderId}/status", ordercontrollers.Transition(ordersSvc, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersSvc, logg))
		})

		r.Route("/vendors/{vendorId}", func(r chi.Router) {
			r.Get("/balance", payoutcontrollers.Balance(payoutsSvc, logg))
			r.Get("/payouts", payoutcontrollers.List(payoutsSvc, logg))
			r.Post("/payout", payoutcontrollers.Request(payoutsSvc, logg))
		})
	})

	return r
}
