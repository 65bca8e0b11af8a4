package enums

// ReservationStatus tracks a stock hold from reserve to its single close.
type ReservationStatus string

const (
	ReservationStatusHeld      ReservationStatus = "held"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusRestocked ReservationStatus = "restocked"
)

// String implements fmt.Stringer.
func (r ReservationStatus) String() string {
	return string(r)
}

// IsOpen reports whether the reservation still keeps stock out of available.
func (r ReservationStatus) IsOpen() bool {
	return r == ReservationStatusHeld || r == ReservationStatusCommitted
}
