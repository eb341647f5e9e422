package domain

import "errors"

var (
	ErrNotFound         = errors.New("payment_not_found")
	ErrInvalidConfig    = errors.New("payment_invalid_config")
	ErrInvalidPayload   = errors.New("payment_invalid_payload")
	ErrInvalidEvent     = errors.New("payment_invalid_event")
	ErrInvalidSignature = errors.New("payment_invalid_signature")
	ErrEventIgnored     = errors.New("payment_event_ignored")

	// ErrSessionNotFound and ErrModeMismatch terminalize reconciliation:
	// the gateway will never answer differently for these sessions.
	ErrSessionNotFound = errors.New("payment_session_not_found")
	ErrModeMismatch    = errors.New("payment_mode_mismatch")

	ErrRefundRejected = errors.New("payment_refund_rejected")
)
