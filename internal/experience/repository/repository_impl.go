package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/roamlabs/fieldtrip/internal/experience/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Experience, error) {
	var exp domain.Experience
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM experiences
		 WHERE id = ?`,
		id,
	).Scan(&exp).Error
	if err != nil {
		return nil, err
	}
	if exp.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &exp, nil
}

// Reserve is the only write path that takes seats. The guard in the WHERE
// clause makes concurrent over-booking impossible regardless of how many
// requests race.
func (r *repository) Reserve(ctx context.Context, db *gorm.DB, id snowflake.ID, quantity int, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE experiences
		 SET remaining_spots = remaining_spots - ?,
		     sold_out = CASE WHEN remaining_spots - ? <= 0 THEN TRUE ELSE sold_out END,
		     updated_at = ?
		 WHERE id = ?
		   AND status = ?
		   AND remaining_spots >= ?`,
		quantity,
		quantity,
		now,
		id,
		domain.StatusPublished,
		quantity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Release(ctx context.Context, db *gorm.DB, id snowflake.ID, quantity int, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE experiences
		 SET remaining_spots = CASE
		         WHEN remaining_spots + ? > max_participants THEN max_participants
		         ELSE remaining_spots + ?
		     END,
		     sold_out = FALSE,
		     updated_at = ?
		 WHERE id = ?`,
		quantity,
		quantity,
		now,
		id,
	).Error
}

func (r *repository) RecomputeRemaining(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	err := db.WithContext(ctx).Exec(
		`UPDATE experiences
		 SET remaining_spots = CASE
		         WHEN max_participants - (
		             SELECT COALESCE(SUM(b.quantity), 0)
		             FROM bookings b
		             WHERE b.experience_id = experiences.id
		               AND b.status IN ('DEPOSIT_PAID', 'PAID', 'PENDING_ATTENDANCE', 'COMPLETED', 'AUTO_COMPLETED', 'NO_SHOW', 'DISPUTED', 'DISPUTE_WON', 'DISPUTE_LOST')
		         ) < 0 THEN 0
		         ELSE max_participants - (
		             SELECT COALESCE(SUM(b.quantity), 0)
		             FROM bookings b
		             WHERE b.experience_id = experiences.id
		               AND b.status IN ('DEPOSIT_PAID', 'PAID', 'PENDING_ATTENDANCE', 'COMPLETED', 'AUTO_COMPLETED', 'NO_SHOW', 'DISPUTED', 'DISPUTE_WON', 'DISPUTE_LOST')
		         )
		     END,
		     updated_at = ?
		 WHERE id = ?`,
		now,
		id,
	).Error
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`UPDATE experiences
		 SET sold_out = (remaining_spots <= 0)
		 WHERE id = ?`,
		id,
	).Error
}

func (r *repository) Disable(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE experiences
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.StatusDisabled,
		now,
		id,
		domain.StatusDisabled,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkHostReminderSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE experiences
		 SET host_reminder_sent = TRUE, updated_at = ?
		 WHERE id = ? AND host_reminder_sent = FALSE`,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
