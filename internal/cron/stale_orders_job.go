package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketcore/internal/orders"
	"github.com/angelmondragon/marketcore/pkg/auth"
	"github.com/angelmondragon/marketcore/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
	"github.com/angelmondragon/marketcore/pkg/logger"
	"github.com/angelmondragon/marketcore/pkg/metrics"
)

const (
	staleOrdersJobName = "stale-orders"
	staleOrderReason   = "pending order expired"
	defaultStaleBatch  = 100
)

type stalePendingLister interface {
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type orderTransitioner interface {
	Transition(ctx context.Context, actor auth.Context, input orders.TransitionInput) (*models.Order, error)
}

// StaleOrdersJobParams configure the pending order expiry job.
type StaleOrdersJobParams struct {
	Logger    *logger.Logger
	Repo      stalePendingLister
	Orders    orderTransitioner
	Metrics   *metrics.CronJobMetrics
	TTL       time.Duration
	BatchSize int
	Now       func() time.Time
}

// StaleOrdersJob fails orders left pending past their TTL, which returns
// their reserved stock.
type StaleOrdersJob struct {
	logg    *logger.Logger
	repo    stalePendingLister
	orders  orderTransitioner
	metrics *metrics.CronJobMetrics
	ttl     time.Duration
	batch   int
	now     func() time.Time
}

func NewStaleOrdersJob(params StaleOrdersJobParams) (*StaleOrdersJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.TTL <= 0 {
		return nil, fmt.Errorf("pending order ttl must be positive")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &StaleOrdersJob{
		logg:    params.Logger,
		repo:    params.Repo,
		orders:  params.Orders,
		metrics: params.Metrics,
		ttl:     params.TTL,
		batch:   batch,
		now:     now,
	}, nil
}

func (j *StaleOrdersJob) Name() string { return staleOrdersJobName }

// Run processes one batch. Orders that moved on since they were listed are
// skipped; other failures are collected and reported together.
func (j *StaleOrdersJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	ids, err := j.repo.FindStalePending(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list stale pending orders: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	reason := staleOrderReason
	var (
		errs    error
		expired int
	)
	for _, id := range ids {
		_, terr := j.orders.Transition(ctx, auth.System(), orders.TransitionInput{
			OrderID: id,
			Status:  "failed",
			Reason:  &reason,
		})
		switch {
		case terr == nil:
			expired++
		case pkgerrors.HasCode(terr, pkgerrors.CodeInvalidTransition),
			pkgerrors.HasCode(terr, pkgerrors.CodeConflict),
			pkgerrors.HasCode(terr, pkgerrors.CodeNotFound):
			j.logg.Info(j.logg.WithOrderID(ctx, id.String()), "stale order changed before expiry; skipping")
		default:
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, terr))
		}
	}

	j.metrics.AddExpired(expired)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(ids),
		"expired":    expired,
	}), "stale pending orders processed")
	return errs
}
