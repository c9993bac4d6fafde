package order

import "fmt"

// Status is the kitchen-side lifecycle of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// transitions lists the only legal moves:
// pending -> in-progress -> completed, and pending -> cancelled.
var transitions = map[Status]Status{
	StatusPending:    StatusInProgress,
	StatusInProgress: StatusCompleted,
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	if from == StatusPending && to == StatusCancelled {
		return true
	}
	next, ok := transitions[from]
	return ok && next == to
}

// PaymentStatus is the payment axis of an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	return p == PaymentPending || p == PaymentPaid
}

// IllegalTransitionError is returned for a status change outside the
// lifecycle graph.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal order transition %s -> %s", e.From, e.To)
}

// Reachable reports whether an order can get from one status to another
// through zero or more legal transitions. An observer that samples the
// status may see any reachable status next.
func Reachable(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range []Status{StatusInProgress, StatusCompleted, StatusCancelled} {
		if CanTransition(from, next) && Reachable(next, to) {
			return true
		}
	}
	return false
}
