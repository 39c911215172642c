package models

// Reservation lifecycle states. Names follow the wire values the dashboards
// and mobile clients already consume.
const (
	StatusPendingPayment = "PENDING_PAYMENT"
	StatusWaiting        = "WAITING"
	StatusAccepted       = "ACCEPTED"
	StatusInProgress     = "IN_PROGRESS"
	StatusClosed         = "CLOSED"
	StatusRejected       = "REJECTED"
	StatusCanceled       = "CANCELED"
	StatusExpired        = "EXPIRED"
)

// Payment transaction states persisted verbatim from the gateway.
const (
	PaymentPending    = "pending_payment"
	PaymentSuccessful = "successful"
	PaymentFailed     = "failed"
	PaymentCanceled   = "canceled"
)

// Deposit combine rules.
const (
	DepositTakeMore = "TAKE_MORE"
	DepositSum      = "SUM"
)

// transitions is the closed edge set of the reservation state machine.
// Everything not listed is illegal.
var transitions = map[string][]string{
	StatusPendingPayment: {StatusWaiting, StatusRejected},
	StatusWaiting:        {StatusAccepted, StatusRejected, StatusCanceled, StatusExpired},
	StatusAccepted:       {StatusInProgress, StatusCanceled, StatusRejected},
	StatusInProgress:     {StatusClosed},
}

// CanTransition reports whether from -> to is an edge of the state graph.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state has no outgoing edges.
func IsTerminal(state string) bool {
	return len(transitions[state]) == 0
}
