package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketcore/pkg/db/models"
	"github.com/angelmondragon/marketcore/pkg/enums"
)

// Repository defines persistence for stock records and reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockStockRecords(ctx context.Context, skus []string) ([]models.StockRecord, error)
	Hold(ctx context.Context, sku string, qty int) (int64, error)
	ReleaseHeld(ctx context.Context, sku string, qty int) (int64, error)
	ConsumeHeld(ctx context.Context, sku string, qty int) (int64, error)
	Credit(ctx context.Context, sku string, qty int) (int64, error)
	CreateReservation(ctx context.Context, reservation *models.Reservation) error
	FindReservationForUpdate(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	MoveReservation(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus, closedAt *time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockStockRecords loads the records for skus in sku order under FOR UPDATE
// so concurrent reservations always acquire row locks in the same order.
func (r *repository) LockStockRecords(ctx context.Context, skus []string) ([]models.StockRecord, error) {
	var records []models.StockRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sku IN ?", skus).
		Order("sku ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Hold moves qty from available to reserved if enough is available.
func (r *repository) Hold(ctx context.Context, sku string, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE stock_records
		SET available_quantity = available_quantity - ?,
			reserved_quantity = reserved_quantity + ?,
			version = version + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE sku = ? AND manage_stock = ? AND available_quantity >= ?
	`, qty, qty, sku, true, qty)
	return res.RowsAffected, res.Error
}

// ReleaseHeld returns a held quantity to available.
func (r *repository) ReleaseHeld(ctx context.Context, sku string, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE stock_records
		SET available_quantity = available_quantity + ?,
			reserved_quantity = reserved_quantity - ?,
			version = version + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE sku = ? AND reserved_quantity >= ?
	`, qty, qty, sku, qty)
	return res.RowsAffected, res.Error
}

// ConsumeHeld makes a held quantity permanent.
func (r *repository) ConsumeHeld(ctx context.Context, sku string, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE stock_records
		SET reserved_quantity = reserved_quantity - ?,
			version = version + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE sku = ? AND reserved_quantity >= ?
	`, qty, sku, qty)
	return res.RowsAffected, res.Error
}

// Credit adds qty back to available after a committed reservation is undone.
func (r *repository) Credit(ctx context.Context, sku string, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE stock_records
		SET available_quantity = available_quantity + ?,
			version = version + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE sku = ?
	`, qty, sku)
	return res.RowsAffected, res.Error
}

func (r *repository) CreateReservation(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) FindReservationForUpdate(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("sku ASC") }).
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// MoveReservation flips the status only if it still equals from, which makes
// every close happen at most once.
func (r *repository) MoveReservation(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus, closedAt *time.Time) (int64, error) {
	updates := map[string]any{"status": to}
	if closedAt != nil {
		updates["closed_at"] = *closedAt
	}
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}
