package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Booking struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	ExperienceID snowflake.ID `json:"experience_id" gorm:"not null;index"`
	ExplorerID   snowflake.ID `json:"explorer_id" gorm:"not null;index"`
	HostID       snowflake.ID `json:"host_id" gorm:"not null;index"`

	Quantity int    `json:"quantity" gorm:"not null"`
	Amount   int64  `json:"amount" gorm:"not null"`
	Currency string `json:"currency" gorm:"type:text;not null"`

	// IsDeposit marks free-experience bookings that only charge the
	// commitment deposit.
	IsDeposit     bool  `json:"is_deposit" gorm:"not null;default:false"`
	DepositAmount int64 `json:"deposit_amount" gorm:"not null;default:0"`

	Status Status `json:"status" gorm:"type:text;not null;index"`

	ReminderSent           bool `json:"reminder_sent" gorm:"not null;default:false"`
	RefundSuccessEmailSent bool `json:"refund_success_email_sent" gorm:"not null;default:false"`

	RefundAttempts      int        `json:"refund_attempts" gorm:"not null;default:0"`
	LastRefundAttemptAt *time.Time `json:"last_refund_attempt_at"`

	PaidAt            *time.Time `json:"paid_at"`
	CompletedAt       *time.Time `json:"completed_at"`
	PayoutEligibleAt  *time.Time `json:"payout_eligible_at"`
	ChatArchivedAt    *time.Time `json:"chat_archived_at"`
	DisputedAt        *time.Time `json:"disputed_at"`
	DisputeResolvedAt *time.Time `json:"dispute_resolved_at"`
	CancelledAt       *time.Time `json:"cancelled_at"`
	RefundedAt        *time.Time `json:"refunded_at"`
	NoShowAt          *time.Time `json:"no_show_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }

// ChargedAmount is what actually moved through the gateway for this
// booking, and therefore what a refund reverses.
func (b *Booking) ChargedAmount() int64 {
	if b.IsDeposit {
		return b.DepositAmount
	}
	return b.Amount
}
