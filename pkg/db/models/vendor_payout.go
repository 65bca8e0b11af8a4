package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore/pkg/enums"
)

// VendorPayout is immutable once created except for Status, which an
// external settlement process moves to paid or rejected.
type VendorPayout struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	VendorID        int64              `gorm:"column:vendor_id;not null;index" json:"vendor_id"`
	Amount          decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Method          string             `gorm:"column:method;not null" json:"method"`
	Status          enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	TotalSales      decimal.Decimal    `gorm:"column:total_sales;type:numeric(12,2);not null" json:"total_sales"`
	TotalCommission decimal.Decimal    `gorm:"column:total_commission;type:numeric(12,2);not null" json:"total_commission"`
	RequestedBy     int64              `gorm:"column:requested_by;not null" json:"requested_by"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *VendorPayout) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
