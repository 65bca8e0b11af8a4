package intake

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore/pkg/auth"
	"github.com/angelmondragon/marketcore/pkg/types"
)

// CanonicalDraft is the client request reduced to what the client controls,
// with cosmetic differences removed. Its JSON encoding is the idempotency
// fingerprint input, so catalog prices and stored address snapshots never
// change the fingerprint of a retried request.
type CanonicalDraft struct {
	ActorID           int64          `json:"actor_id,omitempty"`
	Items             []DraftItem    `json:"items"`
	UserID            *int64         `json:"user_id,omitempty"`
	GuestEmail        *string        `json:"guest_email,omitempty"`
	ShippingAddressID *int64         `json:"shipping_address_id,omitempty"`
	ShippingAddress   *types.Address `json:"shipping_address,omitempty"`
	BillingAddressID  *int64         `json:"billing_address_id,omitempty"`
	BillingAddress    *types.Address `json:"billing_address,omitempty"`
	PaymentMethod     string         `json:"payment_method"`
	Currency          *string        `json:"currency,omitempty"`
	ShippingFee       *string        `json:"shipping_fee,omitempty"`
	DiscountAmount    *string        `json:"discount_amount,omitempty"`
	Notes             *string        `json:"notes,omitempty"`
}

// Canonical normalizes draft for fingerprinting. The key itself is left out.
func Canonical(actor auth.Context, draft Draft) CanonicalDraft {
	out := CanonicalDraft{
		ActorID:           actor.UserID,
		Items:             append([]DraftItem{}, draft.Items...),
		UserID:            draft.UserID,
		ShippingAddressID: draft.ShippingAddressID,
		ShippingAddress:   normalizedAddress(draft.ShippingAddress),
		BillingAddressID:  draft.BillingAddressID,
		BillingAddress:    normalizedAddress(draft.BillingAddress),
		PaymentMethod:     normalizeMethod(draft.PaymentMethod),
		ShippingFee:       amountText(draft.ShippingFee),
		DiscountAmount:    amountText(draft.DiscountAmount),
	}
	if draft.GuestEmail != nil {
		email := strings.ToLower(strings.TrimSpace(*draft.GuestEmail))
		out.GuestEmail = &email
	}
	if draft.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*draft.Currency))
		out.Currency = &currency
	}
	if draft.Notes != nil {
		if notes := strings.TrimSpace(*draft.Notes); notes != "" {
			out.Notes = &notes
		}
	}
	return out
}

// Key returns the trimmed client-provided id, or "" when none was sent.
func (d Draft) Key() string {
	if d.ClientProvidedID == nil {
		return ""
	}
	return strings.TrimSpace(*d.ClientProvidedID)
}

func normalizedAddress(a *types.Address) *types.Address {
	if a == nil {
		return nil
	}
	n := a.Normalized()
	return &n
}

// amountText drops trailing zeros so 5, 5.0 and 5.00 fingerprint alike.
func amountText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
