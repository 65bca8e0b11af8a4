package intake

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore/pkg/types"
)

// Draft is the raw order request as decoded from the client.
type Draft struct {
	Items             []DraftItem      `json:"items"`
	UserID            *int64           `json:"user_id,omitempty"`
	GuestEmail        *string          `json:"guest_email,omitempty"`
	ShippingAddressID *int64           `json:"shipping_address_id,omitempty"`
	ShippingAddress   *types.Address   `json:"shipping_address,omitempty"`
	BillingAddressID  *int64           `json:"billing_address_id,omitempty"`
	BillingAddress    *types.Address   `json:"billing_address,omitempty"`
	PaymentMethod     string           `json:"payment_method"`
	Currency          *string          `json:"currency,omitempty"`
	ShippingFee       *decimal.Decimal `json:"shipping_fee,omitempty"`
	DiscountAmount    *decimal.Decimal `json:"discount_amount,omitempty"`
	ClientProvidedID  *string          `json:"client_provided_id,omitempty"`
	Notes             *string          `json:"notes,omitempty"`
}

type DraftItem struct {
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

// ValidatedOrder is the normalized order ready for reservation and insert.
type ValidatedOrder struct {
	Lines             []Line          `json:"lines"`
	UserID            *int64          `json:"user_id,omitempty"`
	GuestEmail        *string         `json:"guest_email,omitempty"`
	ShippingAddressID *int64          `json:"shipping_address_id,omitempty"`
	ShippingAddress   *types.Address  `json:"shipping_address,omitempty"`
	BillingAddressID  *int64          `json:"billing_address_id,omitempty"`
	BillingAddress    *types.Address  `json:"billing_address,omitempty"`
	PaymentMethod     string          `json:"payment_method"`
	Currency          string          `json:"currency"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	ShippingFee       decimal.Decimal `json:"shipping_fee"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	Total             decimal.Decimal `json:"total"`
	Notes             *string         `json:"notes,omitempty"`
	RequiresShipping  bool            `json:"requires_shipping"`
	ClientProvidedID  *string         `json:"-"`
}

// Line is one priced order line. Duplicate product/variant pairs in the
// draft stay separate lines.
type Line struct {
	ProductID        int64           `json:"product_id"`
	VariantID        *int64          `json:"variant_id,omitempty"`
	VendorID         int64           `json:"vendor_id"`
	SKU              string          `json:"sku"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	LineTotal        decimal.Decimal `json:"line_total"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
}
