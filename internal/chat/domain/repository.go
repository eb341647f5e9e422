package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, message *Message) error
	ListByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]Message, error)
}
