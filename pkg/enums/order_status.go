package enums

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusFailed     OrderStatus = "failed"
)

var orderStatuses = newSet("order status",
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
	OrderStatusFailed,
)

func (s OrderStatus) String() string { return string(s) }

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool { return orderStatuses.contains(s) }

// IsTerminal reports whether the order reached an end state. Delivered
// orders still admit a refund; see the orders state machine.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusRefunded, OrderStatusDelivered, OrderStatusFailed:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return orderStatuses.parse(value)
}

// OrderStatuses lists every status in lifecycle order.
func OrderStatuses() []OrderStatus { return orderStatuses.Values() }
