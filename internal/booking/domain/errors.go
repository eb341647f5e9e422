package domain

import "errors"

var (
	ErrNotFound          = errors.New("booking_not_found")
	ErrForbidden         = errors.New("booking_forbidden")
	ErrInvalidTransition = errors.New("booking_invalid_transition")
	ErrDisputeLocked     = errors.New("booking_dispute_locked")
	ErrOutsideWindow     = errors.New("booking_outside_window")
	ErrInvalidQuantity   = errors.New("booking_invalid_quantity")
	ErrBlocked           = errors.New("booking_blocked")
	ErrInvalidReason     = errors.New("dispute_invalid_reason")
	ErrCommentTooLong    = errors.New("dispute_comment_too_long")
	ErrRefundExhausted   = errors.New("refund_attempts_exhausted")
)
