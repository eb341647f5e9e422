package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/roamlabs/fieldtrip/internal/user/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM users
		 WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

func (r *repository) Ban(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE users
		 SET is_banned = TRUE, updated_at = ?
		 WHERE id = ? AND is_banned = FALSE`,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SyncStripeAccount(
	ctx context.Context,
	db *gorm.DB,
	accountID string,
	chargesEnabled, payoutsEnabled, detailsSubmitted bool,
	now time.Time,
) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE users
		 SET stripe_charges_enabled = ?,
		     stripe_payouts_enabled = ?,
		     stripe_details_submitted = ?,
		     updated_at = ?
		 WHERE stripe_account_id = ?`,
		chargesEnabled,
		payoutsEnabled,
		detailsSubmitted,
		now,
		accountID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
