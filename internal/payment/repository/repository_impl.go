package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/roamlabs/fieldtrip/internal/payment/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, booking_id, host_id, explorer_id,
			stripe_session_id, stripe_payment_intent_id, stripe_charge_id, stripe_refund_id,
			amount, currency, is_deposit, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?, ?, ?, ?)
		ON CONFLICT (booking_id) DO NOTHING`,
		record.ID,
		record.BookingID,
		record.HostID,
		record.ExplorerID,
		record.StripeSessionID,
		record.StripePaymentIntentID,
		record.StripeChargeID,
		record.Amount,
		record.Currency,
		record.IsDeposit,
		record.Status,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repository) FindByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM payments
		 WHERE booking_id = ?`,
		bookingID,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

func (r *repository) FindByPaymentIntent(ctx context.Context, db *gorm.DB, intentID string) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM payments
		 WHERE stripe_payment_intent_id = ?`,
		intentID,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

func (r *repository) MarkSucceeded(
	ctx context.Context,
	db *gorm.DB,
	bookingID snowflake.ID,
	sessionID, intentID, chargeID string,
	now time.Time,
) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?,
		     stripe_session_id = CASE WHEN ? <> '' THEN ? ELSE stripe_session_id END,
		     stripe_payment_intent_id = CASE WHEN ? <> '' THEN ? ELSE stripe_payment_intent_id END,
		     stripe_charge_id = CASE WHEN ? <> '' THEN ? ELSE stripe_charge_id END,
		     updated_at = ?
		 WHERE booking_id = ?`,
		domain.PaymentStatusSucceeded,
		sessionID, sessionID,
		intentID, intentID,
		chargeID, chargeID,
		now,
		bookingID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkFailed(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, updated_at = ?
		 WHERE booking_id = ? AND status = ?`,
		domain.PaymentStatusFailed,
		now,
		bookingID,
		domain.PaymentStatusInitiated,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkRefunded(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, refundID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?,
		     stripe_refund_id = CASE WHEN ? <> '' THEN ? ELSE stripe_refund_id END,
		     updated_at = ?
		 WHERE booking_id = ? AND status <> ?`,
		domain.PaymentStatusRefunded,
		refundID, refundID,
		now,
		bookingID,
		domain.PaymentStatusRefunded,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkDisputed(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, updated_at = ?
		 WHERE booking_id = ? AND status = ?`,
		domain.PaymentStatusDisputed,
		now,
		bookingID,
		domain.PaymentStatusSucceeded,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListInitiatedWithSession(ctx context.Context, db *gorm.DB, limit int) ([]domain.PaymentRecord, error) {
	var records []domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM payments
		 WHERE status = ? AND stripe_session_id <> ''
		 ORDER BY created_at ASC
		 LIMIT ?`,
		domain.PaymentStatusInitiated,
		limit,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (id, event_id, event_type, payload, received_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`,
		event.ID,
		event.EventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindEvent(ctx context.Context, db *gorm.DB, eventID string) (*domain.WebhookEventRecord, error) {
	var event domain.WebhookEventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM webhook_events
		 WHERE event_id = ?`,
		eventID,
	).Scan(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, domain.ErrInvalidEvent
	}
	return &event, nil
}

func (r *repository) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed_at = ?
		 WHERE id = ? AND processed_at IS NULL`,
		processedAt,
		id,
	).Error
}
