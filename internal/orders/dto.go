package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore/pkg/db/models"
)

// TransitionInput requests a move of OrderID to Status.
type TransitionInput struct {
	OrderID uuid.UUID
	Status  string
	Reason  *string
}

// CancelInput cancels OrderID. Refund returns the money of a paid order.
type CancelInput struct {
	OrderID uuid.UUID
	Reason  *string
	Refund  bool
}

// CreateResult is the outcome of Create. Duplicate is set when the request
// replayed an earlier one under the same idempotency key.
type CreateResult struct {
	Order     *models.Order
	Duplicate bool
}
