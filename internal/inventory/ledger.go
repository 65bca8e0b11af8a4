package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore/pkg/db/models"
	"github.com/angelmondragon/marketcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
)

// Line is one SKU quantity requested by an order.
type Line struct {
	SKU      string
	Quantity int
}

// ShortageDetails is attached to InsufficientStock errors.
type ShortageDetails struct {
	SKU       string `json:"sku"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// Ledger reserves stock for orders and closes each reservation exactly once.
// Every method runs inside the caller's transaction.
type Ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []Line) (uuid.UUID, error)
	Commit(ctx context.Context, tx *gorm.DB, token uuid.UUID) error
	Release(ctx context.Context, tx *gorm.DB, token uuid.UUID) error
	Restock(ctx context.Context, tx *gorm.DB, token uuid.UUID) error
	ReturnStock(ctx context.Context, tx *gorm.DB, token uuid.UUID) error
}

type ledger struct {
	repo Repository
	now  func() time.Time
}

// NewLedger wires a ledger over the provided repository.
func NewLedger(repo Repository) (Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &ledger{repo: repo, now: time.Now}, nil
}

func (l *ledger) Reserve(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []Line) (uuid.UUID, error) {
	if tx == nil {
		return uuid.Nil, fmt.Errorf("transaction required")
	}
	if orderID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	wanted, skus, err := aggregate(lines)
	if err != nil {
		return uuid.Nil, err
	}

	repo := l.repo.WithTx(tx)
	records, err := repo.LockStockRecords(ctx, skus)
	if err != nil {
		return uuid.Nil, pkgerrors.Internal(err, "lock stock records")
	}
	bySKU := make(map[string]models.StockRecord, len(records))
	for _, record := range records {
		bySKU[record.SKU] = record
	}

	reservation := &models.Reservation{
		OrderID: orderID,
		Status:  enums.ReservationStatusHeld,
	}
	for _, sku := range skus {
		record, ok := bySKU[sku]
		if !ok {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown sku %s", sku))
		}
		qty := wanted[sku]
		if !record.ManageStock {
			reservation.Lines = append(reservation.Lines, models.ReservationLine{SKU: sku, Quantity: qty})
			continue
		}
		if record.AvailableQuantity < qty {
			return uuid.Nil, shortage(sku, qty, record.AvailableQuantity)
		}
		affected, err := repo.Hold(ctx, sku, qty)
		if err != nil {
			return uuid.Nil, pkgerrors.Internal(err, "hold stock")
		}
		if affected == 0 {
			return uuid.Nil, shortage(sku, qty, record.AvailableQuantity)
		}
		reservation.Lines = append(reservation.Lines, models.ReservationLine{SKU: sku, Quantity: qty, Tracked: true})
	}

	if err := repo.CreateReservation(ctx, reservation); err != nil {
		return uuid.Nil, pkgerrors.Internal(err, "create reservation")
	}
	return reservation.ID, nil
}

func (l *ledger) Commit(ctx context.Context, tx *gorm.DB, token uuid.UUID) error {
	return l.close(ctx, tx, token, enums.ReservationStatusHeld, enums.ReservationStatusCommitted, Repository.ConsumeHeld)
}

func (l *ledger) Release(ctx context.Context, tx *gorm.DB, token uuid.UUID) error {
	return l.close(ctx, tx, token, enums.ReservationStatusHeld, enums.ReservationStatusReleased, Repository.ReleaseHeld)
}

func (l *ledger) Restock(ctx context.Context, tx *gorm.DB, token uuid.UUID) error {
	return l.close(ctx, tx, token, enums.ReservationStatusCommitted, enums.ReservationStatusRestocked, Repository.Credit)
}

// ReturnStock gives back whatever the reservation still keeps out of
// available: a held token is released, a committed one restocked. Already
// closed tokens are left alone.
func (l *ledger) ReturnStock(ctx context.Context, tx *gorm.DB, token uuid.UUID) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	reservation, err := l.load(ctx, l.repo.WithTx(tx), token)
	if err != nil {
		return err
	}
	switch reservation.Status {
	case enums.ReservationStatusHeld:
		return l.Release(ctx, tx, token)
	case enums.ReservationStatusCommitted:
		return l.Restock(ctx, tx, token)
	default:
		return nil
	}
}

type stockMove func(repo Repository, ctx context.Context, sku string, qty int) (int64, error)

func (l *ledger) close(ctx context.Context, tx *gorm.DB, token uuid.UUID, from, to enums.ReservationStatus, move stockMove) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	repo := l.repo.WithTx(tx)
	reservation, err := l.load(ctx, repo, token)
	if err != nil {
		return err
	}
	if reservation.Status == to {
		return nil
	}
	if reservation.Status != from {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("reservation is %s, cannot move to %s", reservation.Status, to))
	}

	now := l.now().UTC()
	affected, err := repo.MoveReservation(ctx, token, from, to, &now)
	if err != nil {
		return pkgerrors.Internal(err, "update reservation")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "reservation changed concurrently")
	}

	for _, line := range reservation.Lines {
		if !line.Tracked {
			continue
		}
		affected, err := move(repo, ctx, line.SKU, line.Quantity)
		if err != nil {
			return pkgerrors.Internal(err, "adjust stock")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("stock record %s out of sync with reservation", line.SKU))
		}
	}
	return nil
}

func (l *ledger) load(ctx context.Context, repo Repository, token uuid.UUID) (*models.Reservation, error) {
	if token == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation token is required")
	}
	reservation, err := repo.FindReservationForUpdate(ctx, token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	if err != nil {
		return nil, pkgerrors.Internal(err, "load reservation")
	}
	return reservation, nil
}

func aggregate(lines []Line) (map[string]int, []string, error) {
	if len(lines) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	wanted := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.SKU == "" {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
		}
		if line.Quantity <= 0 {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity for %s must be positive", line.SKU))
		}
		wanted[line.SKU] += line.Quantity
	}
	skus := make([]string, 0, len(wanted))
	for sku := range wanted {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return wanted, skus, nil
}

func shortage(sku string, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient stock for %s", sku)).
		WithDetails(ShortageDetails{SKU: sku, Requested: requested, Available: available})
}
