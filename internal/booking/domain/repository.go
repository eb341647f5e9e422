package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists bookings. Every status mutation is a compare-and-set
// on the current status, so concurrent sweepers and webhook replays
// converge instead of clobbering each other: the first writer wins and the
// rest see zero rows affected.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	ListByHost(ctx context.Context, db *gorm.DB, hostID snowflake.ID) ([]Booking, error)
	ListByExplorer(ctx context.Context, db *gorm.DB, explorerID snowflake.ID) ([]Booking, error)
	ListPaidByExperience(ctx context.Context, db *gorm.DB, experienceID snowflake.ID) ([]Booking, error)

	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, to Status, now time.Time) (bool, error)
	SetPendingAttendance(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	SetCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, payoutEligibleAt time.Time, now time.Time) (bool, error)
	SetAutoCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, completedAt, payoutEligibleAt time.Time, now time.Time) (bool, error)
	SetNoShow(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	SetCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, now time.Time) (bool, error)
	SetRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	SetRefundFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	SetDisputed(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, now time.Time) (bool, error)
	SetDisputeResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, won bool, payoutEligibleAt *time.Time, now time.Time) (bool, error)

	MarkReminderSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	MarkRefundEmailSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	SetChatArchived(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	CountRecentNoShows(ctx context.Context, db *gorm.DB, explorerID snowflake.ID, since time.Time) (int64, error)
}
