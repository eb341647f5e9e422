package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type CreateBookingRequest struct {
	ExperienceID snowflake.ID
	ExplorerID   snowflake.ID
	Quantity     int
}

type CreateBookingResponse struct {
	Booking     *Booking
	CheckoutURL string
}

// PaymentSuccess is what a webhook or reconciliation pass learned from the
// gateway about a captured payment.
type PaymentSuccess struct {
	BookingID       snowflake.ID
	SessionID       string
	PaymentIntentID string
	ChargeID        string
	Amount          int64
	Currency        string
	IsDeposit       bool
}

type OpenDisputeRequest struct {
	BookingID  snowflake.ID
	ReporterID snowflake.ID
	Reason     string
	Comment    string
}

// Service is the only component allowed to move bookings between
// statuses. Webhooks, sweepers and admin actions all converge here.
type Service interface {
	Create(ctx context.Context, req CreateBookingRequest) (*CreateBookingResponse, error)
	Get(ctx context.Context, id snowflake.ID) (*Booking, error)
	ListByHost(ctx context.Context, hostID snowflake.ID) ([]Booking, error)
	ListByExplorer(ctx context.Context, explorerID snowflake.ID) ([]Booking, error)

	// ApplyPaymentSuccess is idempotent: only the first application
	// rebuilds capacity and notifies; replays merely backfill gateway ids.
	ApplyPaymentSuccess(ctx context.Context, event PaymentSuccess) error
	ApplyRefundSucceeded(ctx context.Context, bookingID snowflake.ID) error
	MarkRefundFailed(ctx context.Context, bookingID snowflake.ID) error
	ApplyProviderDisputeOpened(ctx context.Context, bookingID snowflake.ID) error
	ApplyProviderDisputeClosed(ctx context.Context, bookingID snowflake.ID, won bool) error

	Cancel(ctx context.Context, bookingID, actorID snowflake.ID) error
	ConfirmAttendance(ctx context.Context, bookingID, hostID snowflake.ID) error
	MarkNoShow(ctx context.Context, bookingID, hostID snowflake.ID) error
	OpenDispute(ctx context.Context, req OpenDisputeRequest) error
	ResolveDispute(ctx context.Context, bookingID snowflake.ID, won bool) error

	// Refund pushes a refund through the gateway with a deterministic
	// idempotency key and records the outcome.
	Refund(ctx context.Context, bookingID snowflake.ID, reason string) error
	RetryRefund(ctx context.Context, bookingID snowflake.ID) error

	OpenAttendance(ctx context.Context, bookingID snowflake.ID) error
	AutoComplete(ctx context.Context, bookingID snowflake.ID) error
}
