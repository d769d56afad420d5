package orders

import "github.com/ariefcatur/go-delivery-ledger.git/internal/apperr"

type Status string

const (
	StatusConfirmed  Status = "Confirmed"
	StatusInProgress Status = "InProgress"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusInProgress, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses accept no further transition.
func (s Status) Terminal() bool { return s == StatusDelivered || s == StatusCancelled }

var validNext = map[Status]map[Status]bool{
	StatusConfirmed:  {StatusInProgress: true, StatusCancelled: true},
	StatusInProgress: {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// CanTransition gates an order status change. A nil result means the change
// may be submitted.
func CanTransition(from, to Status, role Role) error {
	const op = "canTransition"
	if from.Terminal() {
		return apperr.New(apperr.KindTerminalState, op)
	}
	if role != RoleAdmin {
		return apperr.New(apperr.KindNotAuthorized, op)
	}
	if !validNext[from][to] {
		return apperr.New(apperr.KindInvalidTransition, op)
	}
	return nil
}

// CanSubmitFeedback gates feedback on an order. Feedback may be resubmitted;
// a later submission overwrites the earlier one.
func CanSubmitFeedback(status Status, role Role) error {
	const op = "canSubmitFeedback"
	if status != StatusDelivered {
		return apperr.New(apperr.KindNotYetDelivered, op)
	}
	if role != RoleCustomer {
		return apperr.New(apperr.KindNotAuthorized, op)
	}
	return nil
}
