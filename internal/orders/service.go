// Package orders owns the order aggregate: creation from validated drafts
// and every status change after that.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore/internal/idempotency"
	"github.com/angelmondragon/marketcore/internal/intake"
	"github.com/angelmondragon/marketcore/internal/inventory"
	"github.com/angelmondragon/marketcore/internal/notifications"
	"github.com/angelmondragon/marketcore/internal/payments"
	"github.com/angelmondragon/marketcore/internal/payouts"
	"github.com/angelmondragon/marketcore/pkg/auth"
	"github.com/angelmondragon/marketcore/pkg/db"
	"github.com/angelmondragon/marketcore/pkg/db/models"
	"github.com/angelmondragon/marketcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
	"github.com/angelmondragon/marketcore/pkg/logger"
	"github.com/angelmondragon/marketcore/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type draftValidator interface {
	Validate(ctx context.Context, actor auth.Context, draft intake.Draft) (*intake.ValidatedOrder, error)
}

type admitter interface {
	Admit(ctx context.Context, tx *gorm.DB, key, fingerprint string) (idempotency.Decision, error)
}

// Service defines order creation, reads and status changes.
type Service interface {
	Create(ctx context.Context, actor auth.Context, draft intake.Draft) (*CreateResult, error)
	Get(ctx context.Context, actor auth.Context, orderID uuid.UUID) (*models.Order, error)
	Transition(ctx context.Context, actor auth.Context, input TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, actor auth.Context, input CancelInput) (*models.Order, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	validator draftValidator
	guard     admitter
	ledger    inventory.Ledger
	prepaid   map[string]struct{}
	notifier  notifications.Notifier
	refunder  payments.Refunder
	metrics   *metrics.CoreMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// Option customizes optional collaborators of the service.
type Option func(*service)

func WithNotifier(n notifications.Notifier) Option {
	return func(s *service) { s.notifier = n }
}

func WithRefunder(r payments.Refunder) Option {
	return func(s *service) { s.refunder = r }
}

func WithMetrics(m *metrics.CoreMetrics) Option {
	return func(s *service) { s.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *service) { s.logg = l }
}

// NewService wires the order service. prepaidMethods are the payment
// methods considered collected once an order is confirmed.
func NewService(
	repo Repository,
	tx txRunner,
	validator draftValidator,
	guard admitter,
	ledger inventory.Ledger,
	prepaidMethods []string,
	opts ...Option,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if validator == nil {
		return nil, fmt.Errorf("order validator required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	prepaid := make(map[string]struct{}, len(prepaidMethods))
	for _, m := range prepaidMethods {
		prepaid[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	s := &service{
		repo:      repo,
		tx:        tx,
		validator: validator,
		guard:     guard,
		ledger:    ledger,
		prepaid:   prepaid,
		logg:      logger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notifications.NewLogNotifier(s.logg)
	}
	if s.refunder == nil {
		s.refunder = payments.NewLogRefunder(s.logg)
	}
	return s, nil
}

var errKeyRace = errors.New("idempotency key claimed concurrently")

func (s *service) Create(ctx context.Context, actor auth.Context, draft intake.Draft) (*CreateResult, error) {
	started := s.now()
	defer func() { s.metrics.ObserveDuration("order_create", s.now().Sub(started)) }()

	fingerprint, err := idempotency.Fingerprint(intake.Canonical(actor, draft))
	if err != nil {
		return nil, pkgerrors.Internal(err, "fingerprint order")
	}
	key := draft.Key()

	// A known key is answered before catalog checks so a retry still gets its
	// order after prices change or a product is withdrawn.
	if key != "" {
		replay, err := s.replay(ctx, nil, key, fingerprint)
		if err != nil {
			s.metrics.IncOrderCreated("failed")
			return nil, err
		}
		if replay != nil {
			s.metrics.IncOrderCreated("duplicate")
			return replay, nil
		}
	}

	validated, err := s.validator.Validate(ctx, actor, draft)
	if err != nil {
		s.metrics.IncOrderCreated("rejected")
		return nil, err
	}

	var result *CreateResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		result = nil
		repo := s.repo.WithTx(tx)

		replay, err := s.replay(ctx, tx, key, fingerprint)
		if err != nil || replay != nil {
			result = replay
			return err
		}

		order := buildOrder(validated, fingerprint, actor)
		token, err := s.ledger.Reserve(ctx, tx, order.ID, reservationLines(validated.Lines))
		if err != nil {
			return err
		}
		order.ReservationID = &token

		if err := repo.Create(ctx, order); err != nil {
			if key != "" && db.IsUniqueViolation(err, "client_provided_id") {
				return errKeyRace
			}
			return pkgerrors.Internal(err, "insert order")
		}
		result = &CreateResult{Order: order}
		return nil
	})

	if errors.Is(err, errKeyRace) {
		// The losing insert rolled back with its reservation; report the winner.
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			replay, rerr := s.replay(ctx, tx, key, fingerprint)
			if rerr == nil && replay == nil {
				rerr = pkgerrors.New(pkgerrors.CodeConflict, "idempotency key is being used by another request")
			}
			result = replay
			return rerr
		})
	}

	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
			s.metrics.IncReservationFailure("insufficient_stock")
		}
		s.metrics.IncOrderCreated("failed")
		return nil, err
	}

	if result.Duplicate {
		s.metrics.IncOrderCreated("duplicate")
		return result, nil
	}
	s.metrics.IncOrderCreated("created")
	s.notifier.Notify(ctx, notifications.TopicOrderCreated, "Order placed",
		fmt.Sprintf("order %s placed for %s %s", result.Order.ID, result.Order.Total.StringFixed(2), result.Order.Currency))
	return result, nil
}

// replay returns the existing order when key was already used with the same
// payload, or nil when the request should proceed.
func (s *service) replay(ctx context.Context, tx *gorm.DB, key, fingerprint string) (*CreateResult, error) {
	decision, err := s.guard.Admit(ctx, tx, key, fingerprint)
	if err != nil {
		return nil, err
	}
	if !decision.Duplicate() {
		return nil, nil
	}
	existing, err := s.repo.WithTx(tx).FindByID(ctx, decision.OrderID)
	if err != nil {
		return nil, pkgerrors.Internal(err, "load existing order")
	}
	return &CreateResult{Order: existing, Duplicate: true}, nil
}

func buildOrder(v *intake.ValidatedOrder, fingerprint string, actor auth.Context) *models.Order {
	order := &models.Order{
		ID:                 uuid.New(),
		UserID:             v.UserID,
		GuestEmail:         v.GuestEmail,
		ShippingAddressID:  v.ShippingAddressID,
		BillingAddressID:   v.BillingAddressID,
		ShippingAddress:    v.ShippingAddress,
		BillingAddress:     v.BillingAddress,
		PaymentMethod:      v.PaymentMethod,
		PaymentStatus:      enums.PaymentStatusUnpaid,
		Currency:           v.Currency,
		Subtotal:           v.Subtotal,
		ShippingFee:        v.ShippingFee,
		DiscountAmount:     v.DiscountAmount,
		Total:              v.Total,
		Status:             enums.OrderStatusPending,
		Notes:              v.Notes,
		ClientProvidedID:   v.ClientProvidedID,
		RequestFingerprint: fingerprint,
		Version:            1,
	}
	for _, line := range v.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:        line.ProductID,
			VariantID:        line.VariantID,
			VendorID:         line.VendorID,
			SKU:              line.SKU,
			Quantity:         line.Quantity,
			UnitPrice:        line.UnitPrice,
			LineTotal:        line.LineTotal,
			CommissionAmount: line.CommissionAmount,
		})
	}
	order.History = []models.OrderStatusHistory{{
		ToStatus:    enums.OrderStatusPending,
		ActorUserID: actorID(actor),
	}}
	return order
}

func reservationLines(lines []intake.Line) []inventory.Line {
	out := make([]inventory.Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, inventory.Line{SKU: line.SKU, Quantity: line.Quantity})
	}
	return out
}

func (s *service) Get(ctx context.Context, actor auth.Context, orderID uuid.UUID) (*models.Order, error) {
	if !actor.Authenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Internal(err, "load order")
	}
	if !actor.IsAdmin && !order.IsOwnedBy(actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
	}
	return order, nil
}

func (s *service) Transition(ctx context.Context, actor auth.Context, input TransitionInput) (*models.Order, error) {
	target, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(input.Status)))
	if err != nil {
		return nil, pkgerrors.FieldErrors{"status": err.Error()}.AsError()
	}
	return s.change(ctx, actor, change{orderID: input.OrderID, target: target, reason: input.Reason})
}

func (s *service) Cancel(ctx context.Context, actor auth.Context, input CancelInput) (*models.Order, error) {
	return s.change(ctx, actor, change{
		orderID: input.OrderID,
		target:  enums.OrderStatusCancelled,
		reason:  input.Reason,
		refund:  input.Refund,
	})
}

type change struct {
	orderID uuid.UUID
	target  enums.OrderStatus
	reason  *string
	refund  bool
}

// outcome captures what happened inside the transaction so post-commit
// effects can run once it is durable.
type outcome struct {
	order    *models.Order
	from     enums.OrderStatus
	refunded bool
}

func (s *service) change(ctx context.Context, actor auth.Context, req change) (*models.Order, error) {
	if !actor.Authenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if req.orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	started := s.now()
	defer func() { s.metrics.ObserveDuration("order_transition", s.now().Sub(started)) }()

	var out outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var terr error
		out, terr = s.apply(ctx, tx, actor, req)
		return terr
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, out.order.ID.String())
	s.metrics.IncTransition(out.from.String(), req.target.String())
	if out.refunded {
		refund := payments.RefundRequest{
			OrderID:       out.order.ID,
			Amount:        out.order.Total,
			Currency:      out.order.Currency,
			PaymentMethod: out.order.PaymentMethod,
		}
		if rerr := s.refunder.Refund(ctx, refund); rerr != nil {
			s.logg.Error(ctx, "refund gateway call failed", rerr)
		}
	}
	s.notifier.Notify(ctx, notifications.TopicOrderStatus, "Order "+req.target.String(),
		fmt.Sprintf("order %s moved from %s to %s", out.order.ID, out.from, req.target))
	return out.order, nil
}

func (s *service) apply(ctx context.Context, tx *gorm.DB, actor auth.Context, req change) (outcome, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindForUpdate(ctx, req.orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return outcome{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return outcome{}, pkgerrors.Internal(err, "load order")
	}
	if err := authorize(actor, order, req.target); err != nil {
		return outcome{}, err
	}

	from := order.Status
	if err := checkTransition(from, req.target, order.PaymentStatus); err != nil {
		return outcome{}, err
	}

	payment, refunded, err := s.sideEffects(ctx, tx, order, req)
	if err != nil {
		return outcome{}, err
	}

	updates := map[string]any{
		"status":         req.target,
		"payment_status": payment,
		"version":        gorm.Expr("version + 1"),
	}
	affected, err := repo.UpdateStatus(ctx, order.ID, order.Version, from, updates)
	if err != nil {
		return outcome{}, pkgerrors.Internal(err, "update order status")
	}
	if affected == 0 {
		return outcome{}, pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")
	}

	prior := from
	if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
		OrderID:     order.ID,
		FromStatus:  &prior,
		ToStatus:    req.target,
		Reason:      trimmed(req.reason),
		ActorUserID: actorID(actor),
	}); err != nil {
		return outcome{}, pkgerrors.Internal(err, "append status history")
	}

	updated, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		return outcome{}, pkgerrors.Internal(err, "reload order")
	}
	return outcome{order: updated, from: from, refunded: refunded}, nil
}

// sideEffects moves stock for the target state and returns the resulting
// payment status, plus whether money must be returned after commit.
func (s *service) sideEffects(ctx context.Context, tx *gorm.DB, order *models.Order, req change) (enums.PaymentStatus, bool, error) {
	payment := order.PaymentStatus
	token := order.ReservationID

	switch req.target {
	case enums.OrderStatusConfirmed:
		if token != nil {
			if err := s.ledger.Commit(ctx, tx, *token); err != nil {
				return "", false, err
			}
		}
		if _, ok := s.prepaid[order.PaymentMethod]; ok {
			payment = enums.PaymentStatusPaid
		}
	case enums.OrderStatusDelivered:
		payment = enums.PaymentStatusPaid
	case enums.OrderStatusCancelled, enums.OrderStatusFailed:
		if token != nil {
			if err := s.ledger.ReturnStock(ctx, tx, *token); err != nil {
				return "", false, err
			}
		}
		if req.refund && payment == enums.PaymentStatusPaid {
			return enums.PaymentStatusRefunded, true, nil
		}
	case enums.OrderStatusRefunded:
		if order.Status == enums.OrderStatusDelivered {
			if err := payouts.GuardRefund(ctx, tx, order.ID); err != nil {
				return "", false, err
			}
		}
		if token != nil && order.Status != enums.OrderStatusDelivered {
			if err := s.ledger.ReturnStock(ctx, tx, *token); err != nil {
				return "", false, err
			}
		}
		return enums.PaymentStatusRefunded, true, nil
	}
	return payment, false, nil
}

// authorize lets admins make any change and owners cancel their own order.
func authorize(actor auth.Context, order *models.Order, target enums.OrderStatus) error {
	if actor.IsAdmin {
		return nil
	}
	if !order.IsOwnedBy(actor.UserID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
	}
	if target != enums.OrderStatusCancelled {
		return pkgerrors.New(pkgerrors.CodeForbidden, "customers may only cancel their orders")
	}
	return nil
}

func actorID(actor auth.Context) *int64 {
	if actor.UserID <= 0 {
		return nil
	}
	id := actor.UserID
	return &id
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
