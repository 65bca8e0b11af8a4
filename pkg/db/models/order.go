package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore/pkg/enums"
	"github.com/angelmondragon/marketcore/pkg/types"
)

// Order is the persisted order aggregate. Status only changes through the
// orders state machine; Version guards concurrent updates.
type Order struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID             *int64               `gorm:"column:user_id;index" json:"user_id,omitempty"`
	GuestEmail         *string              `gorm:"column:guest_email" json:"guest_email,omitempty"`
	ShippingAddressID  *int64               `gorm:"column:shipping_address_id" json:"shipping_address_id,omitempty"`
	BillingAddressID   *int64               `gorm:"column:billing_address_id" json:"billing_address_id,omitempty"`
	ShippingAddress    *types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json" json:"shipping_address,omitempty"`
	BillingAddress     *types.Address       `gorm:"column:billing_address;type:jsonb;serializer:json" json:"billing_address,omitempty"`
	PaymentMethod      string               `gorm:"column:payment_method;not null" json:"payment_method"`
	PaymentStatus      enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null;default:'unpaid'" json:"payment_status"`
	Currency           string               `gorm:"column:currency;type:char(3);not null" json:"currency"`
	Subtotal           decimal.Decimal      `gorm:"column:subtotal;type:numeric(12,2);not null" json:"subtotal"`
	ShippingFee        decimal.Decimal      `gorm:"column:shipping_fee;type:numeric(12,2);not null" json:"shipping_fee"`
	DiscountAmount     decimal.Decimal      `gorm:"column:discount_amount;type:numeric(12,2);not null" json:"discount_amount"`
	Total              decimal.Decimal      `gorm:"column:total;type:numeric(12,2);not null" json:"total"`
	Status             enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	Notes              *string              `gorm:"column:notes" json:"notes,omitempty"`
	ClientProvidedID   *string              `gorm:"column:client_provided_id;uniqueIndex" json:"client_provided_id,omitempty"`
	RequestFingerprint string               `gorm:"column:request_fingerprint;not null" json:"-"`
	ReservationID      *uuid.UUID           `gorm:"column:reservation_id;type:uuid" json:"reservation_id,omitempty"`
	Version            int64                `gorm:"column:version;not null" json:"version"`
	Items              []OrderItem          `gorm:"foreignKey:OrderID" json:"items"`
	History            []OrderStatusHistory `gorm:"foreignKey:OrderID" json:"status_history"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// IsOwnedBy reports whether the order was placed by the given account.
func (o Order) IsOwnedBy(userID int64) bool {
	return o.UserID != nil && *o.UserID == userID
}

// OrderItem is one order line with its price and commission snapshot.
type OrderItem struct {
	ID               int64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ProductID        int64           `gorm:"column:product_id;not null" json:"product_id"`
	VariantID        *int64          `gorm:"column:variant_id" json:"variant_id,omitempty"`
	VendorID         int64           `gorm:"column:vendor_id;not null;index" json:"vendor_id"`
	SKU              string          `gorm:"column:sku;not null" json:"sku"`
	Quantity         int             `gorm:"column:quantity;not null;check:quantity > 0" json:"quantity"`
	UnitPrice        decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unit_price"`
	LineTotal        decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null" json:"line_total"`
	CommissionAmount decimal.Decimal `gorm:"column:commission_amount;type:numeric(12,2);not null" json:"commission_amount"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime" json:"-"`
}

// OrderStatusHistory records one accepted status change. FromStatus is nil
// for the row written when the order is created.
type OrderStatusHistory struct {
	ID          int64              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID     uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	FromStatus  *enums.OrderStatus `gorm:"column:from_status;type:text" json:"from_status,omitempty"`
	ToStatus    enums.OrderStatus  `gorm:"column:to_status;type:text;not null" json:"to_status"`
	Reason      *string            `gorm:"column:reason" json:"reason,omitempty"`
	ActorUserID *int64             `gorm:"column:actor_user_id" json:"actor_user_id,omitempty"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
