package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore/pkg/enums"
)

// Reservation is the stock hold taken for one order. Its id is the
// reservation token handed back to callers.
type Reservation struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Status    enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'held'"`
	Lines     []ReservationLine       `gorm:"foreignKey:ReservationID"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	ClosedAt  *time.Time              `gorm:"column:closed_at"`
}

func (r *Reservation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ReservationLine is the per-SKU quantity held by a reservation.
type ReservationLine struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ReservationID uuid.UUID `gorm:"column:reservation_id;type:uuid;not null;index"`
	SKU           string    `gorm:"column:sku;not null"`
	Quantity      int       `gorm:"column:quantity;not null"`
	Tracked       bool      `gorm:"column:tracked;not null"`
}
