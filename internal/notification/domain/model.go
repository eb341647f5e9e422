package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	TypeBookingPaid      = "booking_paid"
	TypeBookingCancelled = "booking_cancelled"
	TypeBookingReminder  = "booking_reminder"
	TypeAttendanceOpen   = "attendance_open"
	TypeBookingCompleted = "booking_completed"
	TypeBookingNoShow    = "booking_no_show"
	TypeRefundSucceeded  = "refund_succeeded"
	TypeRefundFailed     = "refund_failed"
	TypeDisputeOpened    = "dispute_opened"
	TypeDisputeResolved  = "dispute_resolved"
)

type Notification struct {
	ID      snowflake.ID   `json:"id" gorm:"primaryKey"`
	UserID  snowflake.ID   `json:"user_id" gorm:"not null;index"`
	Type    string         `json:"type" gorm:"type:text;not null"`
	Title   string         `json:"title" gorm:"type:text;not null"`
	Message string         `json:"message" gorm:"type:text;not null"`
	Data    datatypes.JSON `json:"data" gorm:"type:jsonb"`
	ReadAt  *time.Time     `json:"read_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Notification) TableName() string { return "notifications" }

type NotifyRequest struct {
	UserID  snowflake.ID
	Type    string
	Title   string
	Message string
	Data    map[string]any

	// Email additionally delivers the message to this address.
	Email string
}

// Service records in-app notifications and optionally emails them.
// Delivery is best-effort: failures are logged, never surfaced to the
// flow that triggered them.
type Service interface {
	Notify(ctx context.Context, req NotifyRequest)
}
