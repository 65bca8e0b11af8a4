package orders

import (
	"github.com/angelmondragon/marketcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
)

// transitions is the complete edge set. Refunds out of non-terminal states
// are additionally gated on the order having been paid.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusConfirmed,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusProcessing,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusShipped,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusRefunded,
	},
}

// AllowedTransitions lists the states reachable from s in one step.
func AllowedTransitions(s enums.OrderStatus) []enums.OrderStatus {
	next := transitions[s]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is an edge of the graph.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// TransitionDetails is attached to InvalidTransition errors.
type TransitionDetails struct {
	From    enums.OrderStatus   `json:"from"`
	To      enums.OrderStatus   `json:"to"`
	Allowed []enums.OrderStatus `json:"allowed"`
}

// checkTransition validates a requested change against the graph and the
// payment gate on refunds.
func checkTransition(from, to enums.OrderStatus, payment enums.PaymentStatus) error {
	details := TransitionDetails{From: from, To: to, Allowed: AllowedTransitions(from)}
	if !CanTransition(from, to) {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot move order from "+from.String()+" to "+to.String()).
			WithDetails(details)
	}
	if to == enums.OrderStatusRefunded && payment != enums.PaymentStatusPaid {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "only paid orders can be refunded").
			WithDetails(details)
	}
	return nil
}
