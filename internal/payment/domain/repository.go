package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
	FindByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*PaymentRecord, error)
	FindByPaymentIntent(ctx context.Context, db *gorm.DB, intentID string) (*PaymentRecord, error)

	// MarkSucceeded backfills the gateway ids webhooks deliver and flips
	// the record to SUCCEEDED. Safe to replay.
	MarkSucceeded(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, sessionID, intentID, chargeID string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, now time.Time) (bool, error)
	MarkRefunded(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, refundID string, now time.Time) (bool, error)
	MarkDisputed(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, now time.Time) (bool, error)

	ListInitiatedWithSession(ctx context.Context, db *gorm.DB, limit int) ([]PaymentRecord, error)

	// InsertEvent reports false when the event id was already recorded.
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, eventID string) (*WebhookEventRecord, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
