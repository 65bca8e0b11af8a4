package payouts

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketcore/pkg/db/models"
	"github.com/angelmondragon/marketcore/pkg/enums"
	"github.com/angelmondragon/marketcore/pkg/pagination"
)

// Repository reads vendor earnings and persists payout requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindVendor(ctx context.Context, vendorID int64) (*models.Vendor, error)
	LockVendor(ctx context.Context, vendorID int64) (*models.Vendor, error)
	SalesTotals(ctx context.Context, vendorID int64) (SalesTotals, error)
	PaidOutTotal(ctx context.Context, vendorID int64) (decimal.Decimal, error)
	OrderShares(ctx context.Context, orderID uuid.UUID) ([]VendorShare, error)
	CreatePayout(ctx context.Context, payout *models.VendorPayout) error
	ListPayouts(ctx context.Context, vendorID int64, after *pagination.Cursor, limit int) ([]models.VendorPayout, error)
}

// SalesTotals sums the vendor's lines on delivered orders.
type SalesTotals struct {
	TotalSales      decimal.Decimal
	TotalCommission decimal.Decimal
}

// VendorShare is one vendor's part of a single order.
type VendorShare struct {
	VendorID   int64
	Sales      decimal.Decimal
	Commission decimal.Decimal
}

// Net is what the share contributes to the vendor's available balance.
func (v VendorShare) Net() decimal.Decimal {
	return v.Sales.Sub(v.Commission)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payouts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindVendor(ctx context.Context, vendorID int64) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).Where("id = ?", vendorID).First(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

// LockVendor takes the vendor row lock that serializes balance checks.
func (r *repository) LockVendor(ctx context.Context, vendorID int64) (*models.Vendor, error) {
	var vendor models.Vendor
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", vendorID).
		First(&vendor).Error
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *repository) SalesTotals(ctx context.Context, vendorID int64) (SalesTotals, error) {
	var row struct {
		TotalSales      decimal.Decimal
		TotalCommission decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Table("order_items").
		Select("COALESCE(SUM(order_items.line_total), 0) AS total_sales, COALESCE(SUM(order_items.commission_amount), 0) AS total_commission").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("order_items.vendor_id = ? AND orders.status = ?", vendorID, enums.OrderStatusDelivered).
		Scan(&row).Error
	if err != nil {
		return SalesTotals{}, err
	}
	return SalesTotals{TotalSales: row.TotalSales.Round(2), TotalCommission: row.TotalCommission.Round(2)}, nil
}

// PaidOutTotal sums every payout that has not been rejected.
func (r *repository) PaidOutTotal(ctx context.Context, vendorID int64) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.VendorPayout{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("vendor_id = ? AND status <> ?", vendorID, enums.PayoutStatusRejected).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}

// OrderShares groups the order's lines by vendor, lowest vendor id first.
func (r *repository) OrderShares(ctx context.Context, orderID uuid.UUID) ([]VendorShare, error) {
	var rows []VendorShare
	err := r.db.WithContext(ctx).
		Table("order_items").
		Select("vendor_id, COALESCE(SUM(line_total), 0) AS sales, COALESCE(SUM(commission_amount), 0) AS commission").
		Where("order_id = ?", orderID).
		Group("vendor_id").
		Order("vendor_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Sales = rows[i].Sales.Round(2)
		rows[i].Commission = rows[i].Commission.Round(2)
	}
	return rows, nil
}

func (r *repository) CreatePayout(ctx context.Context, payout *models.VendorPayout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

// ListPayouts returns up to limit payouts newest first, starting after the
// cursor position when one is given.
func (r *repository) ListPayouts(ctx context.Context, vendorID int64, after *pagination.Cursor, limit int) ([]models.VendorPayout, error) {
	var payouts []models.VendorPayout
	q := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID)
	if after != nil {
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}
