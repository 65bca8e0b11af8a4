// Package intake turns raw order drafts into priced, normalized orders,
// reporting every field violation in one pass.
package intake

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore/pkg/auth"
	"github.com/angelmondragon/marketcore/pkg/config"
	"github.com/angelmondragon/marketcore/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
	"github.com/angelmondragon/marketcore/pkg/types"
)

const (
	maxNotesLength = 1000
	maxKeyLength   = 255
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Validator checks drafts against the catalog and checkout settings.
type Validator struct {
	catalog     Catalog
	cfg         config.CheckoutConfig
	defaultRate decimal.Decimal
	methods     map[string]struct{}
	validate    *validator.Validate
}

// NewValidator wires a Validator. Payment methods are matched
// case-insensitively.
func NewValidator(catalog Catalog, cfg config.CheckoutConfig) (*Validator, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	methods := make(map[string]struct{}, len(cfg.PaymentMethods))
	for _, m := range cfg.PaymentMethods {
		if m = normalizeMethod(m); m != "" {
			methods[m] = struct{}{}
		}
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("at least one payment method required")
	}
	return &Validator{
		catalog:     catalog,
		cfg:         cfg,
		defaultRate: cfg.CommissionRate(),
		methods:     methods,
		validate:    validator.New(),
	}, nil
}

// Validate normalizes draft on behalf of actor. Field violations come back
// together as a single validation error carrying errors.FieldErrors; catalog
// failures are returned as internal errors.
func (v *Validator) Validate(ctx context.Context, actor auth.Context, draft Draft) (*ValidatedOrder, error) {
	fields := pkgerrors.FieldErrors{}
	out := &ValidatedOrder{}

	if err := v.validateItems(ctx, draft.Items, out, fields); err != nil {
		return nil, err
	}
	if err := v.validateCustomer(ctx, actor, draft, out, fields); err != nil {
		return nil, err
	}
	if err := v.validateAddresses(ctx, draft, out, fields); err != nil {
		return nil, err
	}
	v.validatePayment(draft, out, fields)
	v.validateAmounts(draft, out, fields)
	validateExtras(draft, out, fields)

	if err := fields.AsError(); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *Validator) validateItems(ctx context.Context, items []DraftItem, out *ValidatedOrder, fields pkgerrors.FieldErrors) error {
	if len(items) == 0 {
		fields.Add("items", "at least one item is required")
		return nil
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if item.ProductID > 0 {
			ids = append(ids, item.ProductID)
		}
	}
	products, err := v.catalog.ProductsByID(ctx, ids)
	if err != nil {
		return pkgerrors.Internal(err, "load products")
	}

	valid := true
	lines := make([]Line, 0, len(items))
	vendorIDs := []int64{}
	seenVendor := map[int64]struct{}{}
	for i, item := range items {
		prefix := fmt.Sprintf("items[%d]", i)
		ok := true
		if item.Quantity <= 0 {
			fields.Add(prefix+".quantity", "must be a positive integer")
			ok = false
		}
		if item.ProductID <= 0 {
			fields.Add(prefix+".product_id", "must be a positive id")
			valid = false
			continue
		}
		product, found := products[item.ProductID]
		if !found {
			fields.Add(prefix+".product_id", "product not found")
			valid = false
			continue
		}
		if product.RequiresShipping {
			out.RequiresShipping = true
		}
		if !product.Purchasable {
			fields.Add(prefix+".product_id", "product is not purchasable")
			ok = false
		}
		price := product.Price
		if item.VariantID != nil {
			variant := findVariant(product, *item.VariantID)
			if variant == nil {
				fields.Add(prefix+".variant_id", "variant does not belong to product")
				ok = false
			} else if variant.Price != nil {
				price = *variant.Price
			}
		}
		if !ok {
			valid = false
			continue
		}

		lineTotal := price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		lines = append(lines, Line{
			ProductID: product.ID,
			VariantID: item.VariantID,
			VendorID:  product.VendorID,
			SKU:       models.SKU(product.ID, item.VariantID),
			Quantity:  item.Quantity,
			UnitPrice: price,
			LineTotal: lineTotal,
		})
		if _, seen := seenVendor[product.VendorID]; !seen {
			seenVendor[product.VendorID] = struct{}{}
			vendorIDs = append(vendorIDs, product.VendorID)
		}
	}
	if !valid {
		return nil
	}

	rates, err := v.catalog.CommissionRates(ctx, vendorIDs)
	if err != nil {
		return pkgerrors.Internal(err, "load commission rates")
	}
	subtotal := decimal.Zero
	for i := range lines {
		rate := v.defaultRate
		if r := rates[lines[i].VendorID]; r != nil {
			rate = *r
		}
		lines[i].CommissionAmount = lines[i].LineTotal.Mul(rate).Round(2)
		subtotal = subtotal.Add(lines[i].LineTotal)
	}
	out.Lines = lines
	out.Subtotal = subtotal
	return nil
}

func findVariant(product models.Product, variantID int64) *models.ProductVariant {
	for i := range product.Variants {
		if product.Variants[i].ID == variantID {
			return &product.Variants[i]
		}
	}
	return nil
}

func (v *Validator) validateCustomer(ctx context.Context, actor auth.Context, draft Draft, out *ValidatedOrder, fields pkgerrors.FieldErrors) error {
	var email string
	if draft.GuestEmail != nil {
		email = strings.ToLower(strings.TrimSpace(*draft.GuestEmail))
	}
	hasUser := draft.UserID != nil
	hasEmail := email != ""

	switch {
	case hasUser && hasEmail:
		fields.Add("customer", "provide exactly one of user_id or guest_email")
		return nil
	case !hasUser && !hasEmail:
		fields.Add("customer", "user_id or guest_email is required")
		return nil
	case hasEmail:
		if err := v.validate.Var(email, "email"); err != nil {
			fields.Add("guest_email", "must be a valid email")
			return nil
		}
		out.GuestEmail = &email
		return nil
	}

	userID := *draft.UserID
	if userID <= 0 {
		fields.Add("user_id", "must be a positive id")
		return nil
	}
	if !actor.Authenticated() {
		fields.Add("user_id", "requires an authenticated caller")
		return nil
	}
	if !actor.IsAdmin && actor.UserID != userID {
		fields.Add("user_id", "must match the authenticated account")
		return nil
	}
	exists, err := v.catalog.UserExists(ctx, userID)
	if err != nil {
		return pkgerrors.Internal(err, "lookup user")
	}
	if !exists {
		fields.Add("user_id", "account not found")
		return nil
	}
	out.UserID = &userID
	return nil
}

func (v *Validator) validateAddresses(ctx context.Context, draft Draft, out *ValidatedOrder, fields pkgerrors.FieldErrors) error {
	shipID, ship, err := v.resolveAddress(ctx, "shipping_address", draft.ShippingAddressID, draft.ShippingAddress, draft.UserID, fields)
	if err != nil {
		return err
	}
	billID, bill, err := v.resolveAddress(ctx, "billing_address", draft.BillingAddressID, draft.BillingAddress, draft.UserID, fields)
	if err != nil {
		return err
	}

	if out.RequiresShipping && ship == nil {
		fields.Add("shipping_address", "is required when any item requires shipping")
	}
	if bill == nil && draft.BillingAddressID == nil && draft.BillingAddress == nil {
		billID, bill = shipID, ship
	}

	out.ShippingAddressID, out.ShippingAddress = shipID, ship
	out.BillingAddressID, out.BillingAddress = billID, bill
	return nil
}

// resolveAddress accepts either a stored address id owned by the customer or
// an inline address, never both. A nil result without a field error means
// neither was given.
func (v *Validator) resolveAddress(ctx context.Context, field string, id *int64, inline *types.Address, userID *int64, fields pkgerrors.FieldErrors) (*int64, *types.Address, error) {
	if id != nil && inline != nil {
		fields.Add(field, fmt.Sprintf("provide either %s_id or %s", field, field))
		return nil, nil, nil
	}
	if inline != nil {
		normalized := inline.Normalized()
		missing := normalized.MissingFields()
		for _, name := range missing {
			fields.Add(field+"."+name, "is required")
		}
		if len(missing) > 0 {
			return nil, nil, nil
		}
		return nil, &normalized, nil
	}
	if id == nil {
		return nil, nil, nil
	}

	idField := field + "_id"
	if *id <= 0 {
		fields.Add(idField, "must be a positive id")
		return nil, nil, nil
	}
	if userID == nil || *userID <= 0 {
		fields.Add(idField, "stored addresses require user_id")
		return nil, nil, nil
	}
	stored, err := v.catalog.AddressForUser(ctx, *id, *userID)
	if err != nil {
		return nil, nil, pkgerrors.Internal(err, "lookup address")
	}
	if stored == nil {
		fields.Add(idField, "address not found")
		return nil, nil, nil
	}
	snapshot := stored.Inline()
	addressID := stored.ID
	return &addressID, &snapshot, nil
}

func (v *Validator) validatePayment(draft Draft, out *ValidatedOrder, fields pkgerrors.FieldErrors) {
	method := normalizeMethod(draft.PaymentMethod)
	if method == "" {
		fields.Add("payment_method", "is required")
	} else if _, ok := v.methods[method]; !ok {
		fields.Add("payment_method", fmt.Sprintf("must be one of %s", strings.Join(v.cfg.PaymentMethods, ", ")))
	} else {
		out.PaymentMethod = method
	}

	base := strings.ToUpper(strings.TrimSpace(v.cfg.BaseCurrency))
	currency := base
	if draft.Currency != nil {
		currency = strings.ToUpper(strings.TrimSpace(*draft.Currency))
	}
	switch {
	case !currencyPattern.MatchString(currency):
		fields.Add("currency", "must be a 3-letter currency code")
	case currency != base:
		fields.Add("currency", fmt.Sprintf("only %s is supported", base))
	default:
		out.Currency = currency
	}
}

func (v *Validator) validateAmounts(draft Draft, out *ValidatedOrder, fields pkgerrors.FieldErrors) {
	shipping, shipOK := amount("shipping_fee", draft.ShippingFee, fields)
	discount, discountOK := amount("discount_amount", draft.DiscountAmount, fields)
	out.ShippingFee = shipping
	out.DiscountAmount = discount

	if out.Lines == nil || !shipOK || !discountOK {
		return
	}
	gross := out.Subtotal.Add(shipping)
	if discount.GreaterThan(gross) {
		fields.Add("discount_amount", "cannot exceed subtotal plus shipping")
		return
	}
	out.Total = gross.Sub(discount)
}

func amount(field string, value *decimal.Decimal, fields pkgerrors.FieldErrors) (decimal.Decimal, bool) {
	if value == nil {
		return decimal.Zero, true
	}
	if value.IsNegative() {
		fields.Add(field, "must not be negative")
		return decimal.Zero, false
	}
	if !value.Equal(value.Round(2)) {
		fields.Add(field, "must have at most 2 decimal places")
		return decimal.Zero, false
	}
	return *value, true
}

func validateExtras(draft Draft, out *ValidatedOrder, fields pkgerrors.FieldErrors) {
	if draft.Notes != nil {
		notes := strings.TrimSpace(*draft.Notes)
		switch {
		case len([]rune(notes)) > maxNotesLength:
			fields.Add("notes", fmt.Sprintf("must be at most %d characters", maxNotesLength))
		case notes != "":
			out.Notes = &notes
		}
	}
	if draft.ClientProvidedID != nil {
		key := strings.TrimSpace(*draft.ClientProvidedID)
		switch {
		case len(key) > maxKeyLength:
			fields.Add("client_provided_id", fmt.Sprintf("must be at most %d characters", maxKeyLength))
		case key != "":
			out.ClientProvidedID = &key
		}
	}
}

func normalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}
