package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vendor sells products and receives payouts. A nil CommissionRate falls
// back to the configured marketplace default.
type Vendor struct {
	ID             int64            `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerUserID    int64            `gorm:"column:owner_user_id;not null;index"`
	Name           string           `gorm:"column:name;not null"`
	CommissionRate *decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,4)"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
}
