package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry owned by a vendor.
type Product struct {
	ID               int64            `gorm:"column:id;primaryKey;autoIncrement"`
	VendorID         int64            `gorm:"column:vendor_id;not null;index"`
	Name             string           `gorm:"column:name;not null"`
	Price            decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	RequiresShipping bool             `gorm:"column:requires_shipping;not null"`
	Purchasable      bool             `gorm:"column:purchasable;not null"`
	Variants         []ProductVariant `gorm:"foreignKey:ProductID"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductVariant overrides the product price when Price is set.
type ProductVariant struct {
	ID        int64            `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID int64            `gorm:"column:product_id;not null;index"`
	Name      string           `gorm:"column:name;not null"`
	Price     *decimal.Decimal `gorm:"column:price;type:numeric(12,2)"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
}

// SKU builds the stock key for a product or one of its variants.
func SKU(productID int64, variantID *int64) string {
	if variantID == nil {
		return fmt.Sprintf("p%d", productID)
	}
	return fmt.Sprintf("p%d-v%d", productID, *variantID)
}
