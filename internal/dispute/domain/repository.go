package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, report *Report) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Report, error)
	FindOpenByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*Report, error)
	ListOpenByHost(ctx context.Context, db *gorm.DB, hostID snowflake.ID) ([]Report, error)

	// Close flips an OPEN report to HANDLED or IGNORED. Replays see zero
	// rows affected.
	Close(ctx context.Context, db *gorm.DB, id snowflake.ID, status, actionTaken string, now time.Time) (bool, error)
}
