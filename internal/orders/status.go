package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Cancellation after dispatch is a return, handled outside this ledger.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := validNext[st]
	return st, ok
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

var validPaymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending: {PaymentPaid: true, PaymentFailed: true},
	PaymentPaid:    {},
	PaymentFailed:  {},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return validPaymentNext[from][to]
}

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	ps := PaymentStatus(s)
	_, ok := validPaymentNext[ps]
	return ps, ok
}
