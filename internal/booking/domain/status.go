package domain

import "fmt"

type Status string

const (
	StatusPending           Status = "PENDING"
	StatusDepositPaid       Status = "DEPOSIT_PAID"
	StatusPaid              Status = "PAID"
	StatusPendingAttendance Status = "PENDING_ATTENDANCE"
	StatusCompleted         Status = "COMPLETED"
	StatusAutoCompleted     Status = "AUTO_COMPLETED"
	StatusNoShow            Status = "NO_SHOW"
	StatusCancelled         Status = "CANCELLED"
	StatusRefunded          Status = "REFUNDED"
	StatusRefundFailed      Status = "REFUND_FAILED"
	StatusDisputed          Status = "DISPUTED"
	StatusDisputeWon        Status = "DISPUTE_WON"
	StatusDisputeLost       Status = "DISPUTE_LOST"
)

// transitions is the single source of truth for which status moves are
// legal. Every mutation of Booking.Status goes through CanTransition.
var transitions = map[Status][]Status{
	StatusPending:           {StatusPaid, StatusDepositPaid, StatusCancelled},
	StatusDepositPaid:       {StatusPendingAttendance, StatusCancelled, StatusRefunded, StatusRefundFailed, StatusDisputed},
	StatusPaid:              {StatusPendingAttendance, StatusCancelled, StatusRefunded, StatusRefundFailed, StatusDisputed},
	StatusPendingAttendance: {StatusCompleted, StatusAutoCompleted, StatusNoShow, StatusDisputed, StatusRefunded, StatusRefundFailed},
	StatusCompleted:         {StatusDisputed},
	StatusAutoCompleted:     {StatusDisputed},
	StatusNoShow:            {StatusDisputed, StatusRefunded, StatusRefundFailed},
	StatusCancelled:         {StatusRefunded, StatusRefundFailed},
	StatusRefundFailed:      {StatusRefunded, StatusRefundFailed},
	StatusDisputed:          {StatusDisputeWon, StatusDisputeLost},
	StatusDisputeWon:        {},
	StatusDisputeLost:       {StatusRefunded, StatusRefundFailed},
	StatusRefunded:          {},
}

func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition validates a status move and returns the wrapped sentinel on
// an illegal one.
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// PaidStatuses are the statuses in which money has been captured and the
// seats count against capacity.
func PaidStatuses() []Status {
	return []Status{
		StatusDepositPaid,
		StatusPaid,
		StatusPendingAttendance,
		StatusCompleted,
		StatusAutoCompleted,
		StatusNoShow,
		StatusDisputed,
		StatusDisputeWon,
		StatusDisputeLost,
	}
}

func (s Status) IsPaid() bool {
	for _, paid := range PaidStatuses() {
		if s == paid {
			return true
		}
	}
	return false
}

// ReviewEligible reports whether the explorer may leave a review: the
// experience actually took place and attendance is settled.
func (s Status) ReviewEligible() bool {
	switch s {
	case StatusCompleted, StatusAutoCompleted, StatusDisputeWon:
		return true
	}
	return false
}

// DisputeLocked reports whether user-facing mutations are frozen while an
// open dispute overlays the booking.
func (s Status) DisputeLocked() bool {
	return s == StatusDisputed
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}
