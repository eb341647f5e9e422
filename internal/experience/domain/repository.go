package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Experience, error)

	// Reserve atomically takes quantity seats. It reports false when the
	// experience has fewer seats left than requested.
	Reserve(ctx context.Context, db *gorm.DB, id snowflake.ID, quantity int, now time.Time) (bool, error)

	// Release returns quantity seats, clamped to max_participants.
	Release(ctx context.Context, db *gorm.DB, id snowflake.ID, quantity int, now time.Time) error

	// RecomputeRemaining rebuilds remaining_spots from the paid booking
	// quantities so webhook replays cannot double-count a seat.
	RecomputeRemaining(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error

	Disable(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	MarkHostReminderSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}
