package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	Ban(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	SyncStripeAccount(ctx context.Context, db *gorm.DB, accountID string, chargesEnabled, payoutsEnabled, detailsSubmitted bool, now time.Time) (bool, error)
}
