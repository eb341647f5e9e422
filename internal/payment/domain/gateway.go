package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type CreateCheckoutSessionRequest struct {
	BookingID   snowflake.ID
	Amount      int64
	Currency    string
	ProductName string
	IsDeposit   bool

	// Destination charges: funds land on the host's connected account
	// minus the platform fee.
	DestinationAccountID string
	ApplicationFeeAmount int64

	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
	PaymentStatus   string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

func (s *CheckoutSession) Paid() bool {
	return s != nil && s.PaymentStatus == "paid"
}

type CreateRefundRequest struct {
	PaymentIntentID string
	ChargeID        string
	Amount          int64
	Reason          string

	// IdempotencyKey makes gateway retries safe: the same key can never
	// produce two refunds.
	IdempotencyKey string
}

type Refund struct {
	ID     string
	Status string
}

// Gateway is the payment provider surface the marketplace depends on.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CreateCheckoutSessionRequest) (*CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CreateRefund(ctx context.Context, req CreateRefundRequest) (*Refund, error)
}
