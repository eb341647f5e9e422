package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/roamlabs/fieldtrip/internal/chat/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, message *domain.Message) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO messages (id, booking_id, sender_id, body, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		message.ID,
		message.BookingID,
		message.SenderID,
		message.Body,
		message.CreatedAt,
	).Error
}

func (r *repository) ListByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]domain.Message, error) {
	var messages []domain.Message
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM messages
		 WHERE booking_id = ?
		 ORDER BY created_at ASC, id ASC`,
		bookingID,
	).Scan(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}
