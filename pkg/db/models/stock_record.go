package models

import "time"

// StockRecord holds the purchasable quantity for one SKU. Records with
// ManageStock=false are never decremented.
type StockRecord struct {
	ID                int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SKU               string    `gorm:"column:sku;not null;uniqueIndex"`
	ProductID         int64     `gorm:"column:product_id;not null;index"`
	VariantID         *int64    `gorm:"column:variant_id"`
	ManageStock       bool      `gorm:"column:manage_stock;not null"`
	AvailableQuantity int       `gorm:"column:available_quantity;not null;default:0;check:available_quantity >= 0"`
	ReservedQuantity  int       `gorm:"column:reserved_quantity;not null;default:0;check:reserved_quantity >= 0"`
	Version           int64     `gorm:"column:version;not null"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
