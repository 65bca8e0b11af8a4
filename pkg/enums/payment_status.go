package enums

// PaymentStatus records whether money was collected for an order. Prepaid
// orders start paid; refunds move a paid order to refunded.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var paymentStatuses = newSet("payment status", PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusRefunded)

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return paymentStatuses.contains(p) }

// Collected reports whether the order currently holds the buyer's money.
func (p PaymentStatus) Collected() bool { return p == PaymentStatusPaid }

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return paymentStatuses.parse(value)
}
