package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/roamlabs/fieldtrip/internal/booking/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, booking *domain.Booking) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bookings (
			id, experience_id, explorer_id, host_id,
			quantity, amount, currency, is_deposit, deposit_amount,
			status, reminder_sent, refund_success_email_sent, refund_attempts,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, FALSE, 0, ?, ?)`,
		booking.ID,
		booking.ExperienceID,
		booking.ExplorerID,
		booking.HostID,
		booking.Quantity,
		booking.Amount,
		booking.Currency,
		booking.IsDeposit,
		booking.DepositAmount,
		booking.Status,
		booking.CreatedAt,
		booking.UpdatedAt,
	).Error
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Booking, error) {
	var booking domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM bookings
		 WHERE id = ?`,
		id,
	).Scan(&booking).Error
	if err != nil {
		return nil, err
	}
	if booking.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &booking, nil
}

func (r *repository) ListByHost(ctx context.Context, db *gorm.DB, hostID snowflake.ID) ([]domain.Booking, error) {
	var bookings []domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM bookings
		 WHERE host_id = ?
		 ORDER BY created_at DESC`,
		hostID,
	).Scan(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *repository) ListByExplorer(ctx context.Context, db *gorm.DB, explorerID snowflake.ID) ([]domain.Booking, error) {
	var bookings []domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM bookings
		 WHERE explorer_id = ?
		 ORDER BY created_at DESC`,
		explorerID,
	).Scan(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *repository) ListPaidByExperience(ctx context.Context, db *gorm.DB, experienceID snowflake.ID) ([]domain.Booking, error) {
	var bookings []domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM bookings
		 WHERE experience_id = ?
		   AND status IN ?`,
		experienceID,
		statusStrings(domain.PaidStatuses()),
	).Scan(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *repository) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, to domain.Status, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		now,
		now,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetPendingAttendance(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.StatusPendingAttendance,
		now,
		id,
		statusStrings([]domain.Status{domain.StatusPaid, domain.StatusDepositPaid}),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, payoutEligibleAt time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, completed_at = ?, payout_eligible_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCompleted,
		now,
		payoutEligibleAt,
		now,
		id,
		domain.StatusPendingAttendance,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetAutoCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, completedAt, payoutEligibleAt time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, completed_at = ?, payout_eligible_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusAutoCompleted,
		completedAt,
		payoutEligibleAt,
		now,
		id,
		domain.StatusPendingAttendance,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetNoShow(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, no_show_at = ?, payout_eligible_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusNoShow,
		now,
		now,
		id,
		domain.StatusPendingAttendance,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.Status, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, cancelled_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.StatusCancelled,
		now,
		now,
		id,
		statusStrings(from),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, refunded_at = ?, payout_eligible_at = NULL, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.StatusRefunded,
		now,
		now,
		id,
		statusStrings([]domain.Status{
			domain.StatusDepositPaid,
			domain.StatusPaid,
			domain.StatusPendingAttendance,
			domain.StatusNoShow,
			domain.StatusCancelled,
			domain.StatusRefundFailed,
			domain.StatusDisputeLost,
		}),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetRefundFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, refund_attempts = refund_attempts + 1, last_refund_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.StatusRefundFailed,
		now,
		now,
		id,
		statusStrings([]domain.Status{
			domain.StatusDepositPaid,
			domain.StatusPaid,
			domain.StatusPendingAttendance,
			domain.StatusNoShow,
			domain.StatusCancelled,
			domain.StatusRefundFailed,
			domain.StatusDisputeLost,
		}),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetDisputed(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.Status, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, disputed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.StatusDisputed,
		now,
		now,
		id,
		statusStrings(from),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetDisputeResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, won bool, payoutEligibleAt *time.Time, now time.Time) (bool, error) {
	to := domain.StatusDisputeLost
	if won {
		to = domain.StatusDisputeWon
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, dispute_resolved_at = ?, payout_eligible_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		now,
		payoutEligibleAt,
		now,
		id,
		domain.StatusDisputed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkReminderSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET reminder_sent = TRUE, updated_at = ?
		 WHERE id = ? AND reminder_sent = FALSE`,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkRefundEmailSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET refund_success_email_sent = TRUE, updated_at = ?
		 WHERE id = ? AND refund_success_email_sent = FALSE`,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetChatArchived(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET chat_archived_at = ?, updated_at = ?
		 WHERE id = ? AND chat_archived_at IS NULL`,
		now,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CountRecentNoShows(ctx context.Context, db *gorm.DB, explorerID snowflake.ID, since time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM bookings
		 WHERE explorer_id = ?
		   AND status = ?
		   AND no_show_at >= ?`,
		explorerID,
		domain.StatusNoShow,
		since,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
