package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore/internal/idempotency"
	"github.com/angelmondragon/marketcore/internal/intake"
	"github.com/angelmondragon/marketcore/internal/inventory"
	"github.com/angelmondragon/marketcore/internal/orders"
	"github.com/angelmondragon/marketcore/pkg/auth"
	"github.com/angelmondragon/marketcore/pkg/config"
	"github.com/angelmondragon/marketcore/pkg/db/dbtest"
	"github.com/angelmondragon/marketcore/pkg/db/models"
	"github.com/angelmondragon/marketcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
	"github.com/angelmondragon/marketcore/pkg/logger"
	"github.com/angelmondragon/marketcore/pkg/metrics"
	"github.com/angelmondragon/marketcore/pkg/types"
)

type fakeLister struct {
	ids    []uuid.UUID
	err    error
	cutoff time.Time
	limit  int
}

func (f *fakeLister) FindStalePending(_ context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.ids, f.err
}

type fakeTransitioner struct {
	errs  map[uuid.UUID]error
	calls []orders.TransitionInput
	actor auth.Context
}

func (f *fakeTransitioner) Transition(_ context.Context, actor auth.Context, input orders.TransitionInput) (*models.Order, error) {
	f.actor = actor
	f.calls = append(f.calls, input)
	if err := f.errs[input.OrderID]; err != nil {
		return nil, err
	}
	return &models.Order{ID: input.OrderID, Status: enums.OrderStatusFailed}, nil
}

func TestStaleOrdersJobFailsEachCandidateAsSystem(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	moved, gone, broken, ok := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	lister := &fakeLister{ids: []uuid.UUID{moved, gone, broken, ok}}
	tr := &fakeTransitioner{errs: map[uuid.UUID]error{
		moved:  pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot move order from confirmed to failed"),
		gone:   pkgerrors.New(pkgerrors.CodeNotFound, "order not found"),
		broken: pkgerrors.Internal(errors.New("connection reset"), "update order status"),
	}}
	reg := prometheus.NewRegistry()

	job, err := NewStaleOrdersJob(StaleOrdersJobParams{
		Logger:    logger.Nop(),
		Repo:      lister,
		Orders:    tr,
		Metrics:   metrics.NewCronJobMetrics(reg),
		TTL:       48 * time.Hour,
		BatchSize: 25,
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)
	require.Equal(t, "stale-orders", job.Name())

	err = job.Run(context.Background())
	require.ErrorContains(t, err, broken.String())
	require.NotContains(t, err.Error(), moved.String())

	require.Equal(t, now.Add(-48*time.Hour), lister.cutoff)
	require.Equal(t, 25, lister.limit)
	require.Len(t, tr.calls, 4)
	require.True(t, tr.actor.System)
	for _, call := range tr.calls {
		require.Equal(t, "failed", call.Status)
		require.NotNil(t, call.Reason)
		require.Equal(t, staleOrderReason, *call.Reason)
	}

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var expired float64
	for _, mf := range mfs {
		if mf.GetName() == "marketcore_orders_expired_total" {
			expired = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	require.Equal(t, 1.0, expired)
}

func TestStaleOrdersJobListErrorAndEmptyBatch(t *testing.T) {
	tr := &fakeTransitioner{}
	job, err := NewStaleOrdersJob(StaleOrdersJobParams{
		Logger: logger.Nop(), Repo: &fakeLister{err: errors.New("db down")}, Orders: tr, TTL: time.Hour,
	})
	require.NoError(t, err)
	require.ErrorContains(t, job.Run(context.Background()), "db down")

	job, err = NewStaleOrdersJob(StaleOrdersJobParams{
		Logger: logger.Nop(), Repo: &fakeLister{}, Orders: tr, TTL: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
	require.Empty(t, tr.calls)
	require.Equal(t, defaultStaleBatch, job.batch)
}

func TestNewStaleOrdersJobValidatesParams(t *testing.T) {
	base := StaleOrdersJobParams{Logger: logger.Nop(), Repo: &fakeLister{}, Orders: &fakeTransitioner{}, TTL: time.Hour}

	noTTL := base
	noTTL.TTL = 0
	_, err := NewStaleOrdersJob(noTTL)
	require.Error(t, err)

	noRepo := base
	noRepo.Repo = nil
	_, err = NewStaleOrdersJob(noRepo)
	require.Error(t, err)
}

func TestStaleOrdersJobReleasesStockOfExpiredOrders(t *testing.T) {
	client, conn := dbtest.Client(t)
	checkout := config.CheckoutConfig{
		BaseCurrency:          "USD",
		PaymentMethods:        []string{"cash_on_delivery"},
		DefaultCommissionRate: "0.10",
	}
	validator, err := intake.NewValidator(intake.NewCatalog(conn), checkout)
	require.NoError(t, err)
	guard, err := idempotency.NewGuard(idempotency.NewRepository(conn))
	require.NoError(t, err)
	ledger, err := inventory.NewLedger(inventory.NewRepository(conn))
	require.NoError(t, err)
	repo := orders.NewRepository(conn)
	svc, err := orders.NewService(repo, client, validator, guard, ledger, checkout.PrepaidMethods)
	require.NoError(t, err)

	buyer := dbtest.SeedUser(t, conn, "buyer@example.com", false)
	owner := dbtest.SeedUser(t, conn, "vendor@example.com", false)
	vendor := dbtest.SeedVendor(t, conn, owner.ID, "")
	product := dbtest.SeedProduct(t, conn, vendor.ID, "10.00", 5)

	place := func(qty int) *models.Order {
		userID := buyer.ID
		res, err := svc.Create(context.Background(), auth.Context{UserID: buyer.ID}, intake.Draft{
			Items:           []intake.DraftItem{{ProductID: product.ID, Quantity: qty}},
			UserID:          &userID,
			ShippingAddress: &types.Address{Line1: "1 Main St", City: "Austin", PostalCode: "78701", Country: "US"},
			PaymentMethod:   "cash_on_delivery",
		})
		require.NoError(t, err)
		return res.Order
	}
	stale := place(2)
	fresh := place(1)
	require.NoError(t, conn.Model(&models.Order{}).Where("id = ?", stale.ID).
		Update("created_at", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)).Error)

	job, err := NewStaleOrdersJob(StaleOrdersJobParams{Logger: logger.Nop(), Repo: repo, Orders: svc, TTL: 48 * time.Hour})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	system := auth.System()
	expired, err := svc.Get(context.Background(), system, stale.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusFailed, expired.Status)
	require.Len(t, expired.History, 2)
	last := expired.History[len(expired.History)-1]
	require.Nil(t, last.ActorUserID)
	require.NotNil(t, last.Reason)
	require.Equal(t, staleOrderReason, *last.Reason)

	untouched, err := svc.Get(context.Background(), system, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, untouched.Status)

	stock := dbtest.Stock(t, conn, models.SKU(product.ID, nil))
	require.Equal(t, 4, stock.AvailableQuantity)
	require.Equal(t, 1, stock.ReservedQuantity)

	// a second pass finds nothing left to expire
	require.NoError(t, job.Run(context.Background()))
}
