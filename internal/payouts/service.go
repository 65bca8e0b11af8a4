// Package payouts computes vendor balances from delivered orders and gates
// payout requests against them.
package payouts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore/internal/notifications"
	"github.com/angelmondragon/marketcore/pkg/auth"
	"github.com/angelmondragon/marketcore/pkg/db/models"
	"github.com/angelmondragon/marketcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
	"github.com/angelmondragon/marketcore/pkg/locks"
	"github.com/angelmondragon/marketcore/pkg/logger"
	"github.com/angelmondragon/marketcore/pkg/metrics"
	"github.com/angelmondragon/marketcore/pkg/pagination"
)

const lockScope = "vendor_payout"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes balance reads and payout requests.
type Service interface {
	Balance(ctx context.Context, actor auth.Context, vendorID int64) (*Balance, error)
	RequestPayout(ctx context.Context, actor auth.Context, req PayoutRequest) (*models.VendorPayout, error)
	ListPayouts(ctx context.Context, actor auth.Context, vendorID int64, page pagination.Params) (*PayoutPage, error)
}

// Balance is the vendor's settlement position.
type Balance struct {
	VendorID        int64           `json:"vendor_id"`
	TotalSales      decimal.Decimal `json:"total_sales"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	TotalPaidOut    decimal.Decimal `json:"total_paid_out"`
	Available       decimal.Decimal `json:"available"`
}

// PayoutRequest asks for Amount to be paid out via Method. A nil Amount
// requests the full available balance.
type PayoutRequest struct {
	VendorID int64
	Amount   *decimal.Decimal
	Method   string
}

// PayoutPage is one page of payout history. NextCursor is empty on the
// last page.
type PayoutPage struct {
	Payouts    []models.VendorPayout `json:"payouts"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

// BalanceDetails is attached to InsufficientBalance errors.
type BalanceDetails struct {
	Requested decimal.Decimal `json:"requested"`
	Available decimal.Decimal `json:"available"`
}

type service struct {
	repo     Repository
	tx       txRunner
	locker   locks.Locker
	methods  map[string]struct{}
	notifier notifications.Notifier
	metrics  *metrics.CoreMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// Option customizes optional collaborators of the service.
type Option func(*service)

func WithNotifier(n notifications.Notifier) Option {
	return func(s *service) { s.notifier = n }
}

func WithMetrics(m *metrics.CoreMetrics) Option {
	return func(s *service) { s.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *service) { s.logg = l }
}

// NewService wires the payout service. A nil locker falls back to row
// locks only.
func NewService(repo Repository, tx txRunner, locker locks.Locker, methods []string, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if locker == nil {
		locker = locks.NoopLocker{}
	}
	allowed := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		if m = normalizeMethod(m); m != "" {
			allowed[m] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("at least one payout method required")
	}
	s := &service{
		repo:    repo,
		tx:      tx,
		locker:  locker,
		methods: allowed,
		logg:    logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notifications.NewLogNotifier(s.logg)
	}
	return s, nil
}

func (s *service) Balance(ctx context.Context, actor auth.Context, vendorID int64) (*Balance, error) {
	if _, err := s.authorize(ctx, actor, vendorID); err != nil {
		return nil, err
	}
	return balanceOf(ctx, s.repo, vendorID)
}

func (s *service) ListPayouts(ctx context.Context, actor auth.Context, vendorID int64, page pagination.Params) (*PayoutPage, error) {
	if _, err := s.authorize(ctx, actor, vendorID); err != nil {
		return nil, err
	}
	after, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.FieldErrors{"cursor": "is not a valid page cursor"}.AsError()
	}
	rows, err := s.repo.ListPayouts(ctx, vendorID, after, pagination.LimitWithBuffer(page.Limit))
	if err != nil {
		return nil, pkgerrors.Internal(err, "list payouts")
	}
	rows, more := pagination.Trim(rows, page.Limit)
	out := &PayoutPage{Payouts: rows}
	if out.Payouts == nil {
		out.Payouts = []models.VendorPayout{}
	}
	if more {
		last := rows[len(rows)-1]
		out.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return out, nil
}

func (s *service) RequestPayout(ctx context.Context, actor auth.Context, req PayoutRequest) (payout *models.VendorPayout, err error) {
	started := s.now()
	defer func() {
		s.metrics.ObserveDuration("payout_request", s.now().Sub(started))
		s.metrics.IncPayout(payoutOutcome(err))
	}()

	method := normalizeMethod(req.Method)
	if _, ok := s.methods[method]; !ok {
		return nil, pkgerrors.FieldErrors{"method": "must be one of the configured payout methods"}.AsError()
	}
	if req.Amount != nil {
		if err := checkAmount(*req.Amount); err != nil {
			return nil, err
		}
	}
	if _, err := s.authorize(ctx, actor, req.VendorID); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Acquire(ctx, lockScope, strconv.FormatInt(req.VendorID, 10))
	if errors.Is(err, locks.ErrNotAcquired) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "another payout for this vendor is in progress")
	}
	if err != nil {
		return nil, pkgerrors.Internal(err, "acquire payout lock")
	}
	defer func() {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
			s.logg.Warn(s.logg.WithVendorID(ctx, req.VendorID), "release payout lock: "+uerr.Error())
		}
	}()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payout = nil
		repo := s.repo.WithTx(tx)
		if _, err := repo.LockVendor(ctx, req.VendorID); err != nil {
			return pkgerrors.Internal(err, "lock vendor")
		}
		balance, err := balanceOf(ctx, repo, req.VendorID)
		if err != nil {
			return err
		}

		amount := balance.Available
		if req.Amount != nil {
			amount = *req.Amount
		}
		if !amount.IsPositive() || amount.GreaterThan(balance.Available) {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "requested amount exceeds available balance").
				WithDetails(BalanceDetails{Requested: amount, Available: balance.Available})
		}

		record := &models.VendorPayout{
			VendorID:        req.VendorID,
			Amount:          amount,
			Method:          method,
			Status:          enums.PayoutStatusPending,
			TotalSales:      balance.TotalSales,
			TotalCommission: balance.TotalCommission,
			RequestedBy:     actor.UserID,
			CreatedAt:       s.now().UTC(),
		}
		if err := repo.CreatePayout(ctx, record); err != nil {
			return pkgerrors.Internal(err, "create payout")
		}
		payout = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(s.logg.WithVendorID(ctx, req.VendorID), notifications.TopicPayoutRequested, "Payout requested",
		fmt.Sprintf("vendor %d requested %s via %s", payout.VendorID, payout.Amount.StringFixed(2), payout.Method))
	return payout, nil
}

func balanceOf(ctx context.Context, repo Repository, vendorID int64) (*Balance, error) {
	sales, err := repo.SalesTotals(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Internal(err, "sum vendor sales")
	}
	paid, err := repo.PaidOutTotal(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Internal(err, "sum vendor payouts")
	}
	return &Balance{
		VendorID:        vendorID,
		TotalSales:      sales.TotalSales,
		TotalCommission: sales.TotalCommission,
		TotalPaidOut:    paid,
		Available:       sales.TotalSales.Sub(sales.TotalCommission).Sub(paid),
	}, nil
}

// authorize admits the vendor's owner and admins.
func (s *service) authorize(ctx context.Context, actor auth.Context, vendorID int64) (*models.Vendor, error) {
	if !actor.Authenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if vendorID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	vendor, err := s.repo.FindVendor(ctx, vendorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
	}
	if err != nil {
		return nil, pkgerrors.Internal(err, "load vendor")
	}
	if !actor.IsAdmin && vendor.OwnerUserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor belongs to another account")
	}
	return vendor, nil
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must have at most 2 decimal places")
	}
	return nil
}

func payoutOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientBalance):
		return "insufficient_balance"
	case pkgerrors.HasCode(err, pkgerrors.CodeInvalidAmount), pkgerrors.HasCode(err, pkgerrors.CodeValidation):
		return "invalid"
	default:
		return "error"
	}
}

func normalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}
