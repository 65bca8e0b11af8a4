package intake

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/marketcore/pkg/auth"
)

func TestCanonicalNormalizesClientInput(t *testing.T) {
	fee := decimal.RequireFromString("5.00")
	draft := Draft{
		Items:            []DraftItem{{ProductID: 7, Quantity: 2}},
		GuestEmail:       ptr("  Buyer@Example.COM "),
		ShippingAddress:  inlineAddress(),
		PaymentMethod:    " Card ",
		Currency:         ptr(" usd"),
		ShippingFee:      &fee,
		ClientProvidedID: ptr(" key-1 "),
		Notes:            ptr("   "),
	}

	c := Canonical(auth.Context{}, draft)
	assert.Equal(t, "buyer@example.com", *c.GuestEmail)
	assert.Equal(t, "card", c.PaymentMethod)
	assert.Equal(t, "USD", *c.Currency)
	assert.Equal(t, "5", *c.ShippingFee)
	assert.Equal(t, "US", c.ShippingAddress.Country)
	assert.Nil(t, c.Notes)
	assert.Equal(t, "key-1", draft.Key())
	assert.Equal(t, "us", draft.ShippingAddress.Country, "input is not mutated")
}

func TestCanonicalSeparatesCallers(t *testing.T) {
	draft := Draft{Items: []DraftItem{{ProductID: 7, Quantity: 1}}, PaymentMethod: "card"}
	a := Canonical(auth.Context{UserID: 1}, draft)
	b := Canonical(auth.Context{UserID: 2}, draft)
	assert.NotEqual(t, a.ActorID, b.ActorID)
	assert.Empty(t, Draft{}.Key())
}
