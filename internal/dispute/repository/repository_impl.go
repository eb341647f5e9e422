package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/roamlabs/fieldtrip/internal/dispute/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, report *domain.Report) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO dispute_reports (
			id, booking_id, experience_id, host_id, reporter_id,
			reason, comment, status, action_taken, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?)`,
		report.ID,
		report.BookingID,
		report.ExperienceID,
		report.HostID,
		report.ReporterID,
		report.Reason,
		report.Comment,
		report.Status,
		report.CreatedAt,
	).Error
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Report, error) {
	var report domain.Report
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM dispute_reports
		 WHERE id = ?`,
		id,
	).Scan(&report).Error
	if err != nil {
		return nil, err
	}
	if report.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &report, nil
}

func (r *repository) FindOpenByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*domain.Report, error) {
	var report domain.Report
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM dispute_reports
		 WHERE booking_id = ? AND status = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		bookingID,
		domain.ReportStatusOpen,
	).Scan(&report).Error
	if err != nil {
		return nil, err
	}
	if report.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &report, nil
}

func (r *repository) ListOpenByHost(ctx context.Context, db *gorm.DB, hostID snowflake.ID) ([]domain.Report, error) {
	var reports []domain.Report
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM dispute_reports
		 WHERE host_id = ? AND status = ?
		 ORDER BY created_at DESC`,
		hostID,
		domain.ReportStatusOpen,
	).Scan(&reports).Error
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *repository) Close(ctx context.Context, db *gorm.DB, id snowflake.ID, status, actionTaken string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE dispute_reports
		 SET status = ?, action_taken = ?, handled_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		actionTaken,
		now,
		id,
		domain.ReportStatusOpen,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
