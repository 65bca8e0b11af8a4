package enums

// PayoutStatus tracks a vendor payout through external settlement.
type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "pending"
	PayoutStatusPaid     PayoutStatus = "paid"
	PayoutStatusRejected PayoutStatus = "rejected"
)

var payoutStatuses = newSet("payout status", PayoutStatusPending, PayoutStatusPaid, PayoutStatusRejected)

func (p PayoutStatus) String() string { return string(p) }

func (p PayoutStatus) IsValid() bool { return payoutStatuses.contains(p) }

func ParsePayoutStatus(value string) (PayoutStatus, error) {
	return payoutStatuses.parse(value)
}
