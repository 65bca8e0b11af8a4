// Package payments holds the boundary to the external payment gateway.
package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore/pkg/logger"
)

// RefundRequest describes money to return for one order.
type RefundRequest struct {
	OrderID       uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
}

// Refunder returns funds through the gateway. It is called after the
// refund is committed locally; errors are logged by the caller.
type Refunder interface {
	Refund(ctx context.Context, req RefundRequest) error
}

// LogRefunder records refund requests without contacting a gateway.
type LogRefunder struct {
	logg *logger.Logger
}

func NewLogRefunder(logg *logger.Logger) *LogRefunder {
	return &LogRefunder{logg: logg}
}

func (r *LogRefunder) Refund(ctx context.Context, req RefundRequest) error {
	if r == nil || r.logg == nil {
		return nil
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"order_id":       req.OrderID.String(),
		"amount":         req.Amount.StringFixed(2),
		"currency":       req.Currency,
		"payment_method": req.PaymentMethod,
	})
	r.logg.Info(ctx, "refund requested")
	return nil
}
