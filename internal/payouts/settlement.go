package payouts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
)

// ReversalDetails is attached to Conflict errors from GuardRefund.
type ReversalDetails struct {
	VendorID  int64           `json:"vendor_id"`
	Available decimal.Decimal `json:"available"`
	Reversal  decimal.Decimal `json:"reversal"`
}

// GuardRefund runs inside the transaction that takes a delivered order out
// of the balance. It locks each affected vendor row, lowest id first, the
// same lock RequestPayout holds, and rejects the refund when a vendor has
// already been paid more than it would have left.
func GuardRefund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return fmt.Errorf("refund guard requires a transaction")
	}
	repo := NewRepository(tx)
	shares, err := repo.OrderShares(ctx, orderID)
	if err != nil {
		return pkgerrors.Internal(err, "load vendor shares")
	}
	for _, share := range shares {
		if _, err := repo.LockVendor(ctx, share.VendorID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return pkgerrors.Internal(err, "lock vendor")
		}
		balance, err := balanceOf(ctx, repo, share.VendorID)
		if err != nil {
			return err
		}
		if balance.Available.Sub(share.Net()).IsNegative() {
			return pkgerrors.New(pkgerrors.CodeConflict, "refund would leave a vendor balance negative after payouts").
				WithDetails(ReversalDetails{VendorID: share.VendorID, Available: balance.Available, Reversal: share.Net()})
		}
	}
	return nil
}
