package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	PaymentStatusInitiated = "INITIATED"
	PaymentStatusSucceeded = "SUCCEEDED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
	PaymentStatusDisputed  = "DISPUTED"
)

// PaymentRecord is the gateway-side shadow of a booking: which Stripe
// objects carry its money and where that money currently sits.
type PaymentRecord struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	BookingID  snowflake.ID `json:"booking_id" gorm:"not null;uniqueIndex"`
	HostID     snowflake.ID `json:"host_id" gorm:"not null;index"`
	ExplorerID snowflake.ID `json:"explorer_id" gorm:"not null;index"`

	StripeSessionID       string `json:"stripe_session_id" gorm:"type:text"`
	StripePaymentIntentID string `json:"stripe_payment_intent_id" gorm:"type:text;index"`
	StripeChargeID        string `json:"stripe_charge_id" gorm:"type:text"`
	StripeRefundID        string `json:"stripe_refund_id" gorm:"type:text"`

	Amount    int64  `json:"amount" gorm:"not null"`
	Currency  string `json:"currency" gorm:"type:text;not null"`
	IsDeposit bool   `json:"is_deposit" gorm:"not null;default:false"`

	Status string `json:"status" gorm:"type:text;not null;index"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (PaymentRecord) TableName() string { return "payments" }

// WebhookEventRecord is the dedup ledger for provider webhooks. The
// unique event_id column carries the exactly-once guarantee.
type WebhookEventRecord struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventID     string         `json:"event_id" gorm:"type:text;not null;uniqueIndex"`
	EventType   string         `json:"event_type" gorm:"type:text;not null"`
	Payload     datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt  time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt *time.Time     `json:"processed_at"`
}

func (WebhookEventRecord) TableName() string { return "webhook_events" }
