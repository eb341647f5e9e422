package scheduler

import (
	"context"
	"errors"

	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	chatdomain "github.com/roamlabs/fieldtrip/internal/chat/domain"
	"go.uber.org/zap"
)

// ChatArchiveJob closes chat threads once their booking is long over.
// Disputed bookings are skipped entirely: resolution restarts the
// countdown from the resolution time.
func (s *Scheduler) ChatArchiveJob(ctx context.Context) error {
	now := s.clock.Now()
	policy := s.policy.Get()

	statuses := make([]string, 0)
	for _, status := range bookingdomain.PaidStatuses() {
		if status == bookingdomain.StatusDisputed {
			continue
		}
		statuses = append(statuses, string(status))
	}

	var rows []workBooking
	err := s.db.WithContext(ctx).Raw(
		`SELECT b.id, b.status, b.created_at, b.dispute_resolved_at,
		        e.id AS exp_id, e.starts_at, e.ends_at, e.duration_minutes
		 FROM bookings b
		 LEFT JOIN experiences e ON e.id = b.experience_id
		 WHERE b.chat_archived_at IS NULL AND b.status IN ?
		 ORDER BY b.created_at ASC
		 LIMIT ?`,
		statuses,
		s.cfg.BatchSize,
	).Scan(&rows).Error
	if err != nil {
		return err
	}

	var jobErr error
	for _, row := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		booking := &bookingdomain.Booking{
			ID:                row.ID,
			Status:            row.Status,
			CreatedAt:         row.CreatedAt,
			DisputeResolvedAt: row.DisputeResolvedAt,
		}
		end, _ := bookingdomain.EffectiveEndTime(row.experience(), row.CreatedAt)
		archiveAt, ok := chatdomain.ArchiveAt(booking, end, policy.ChatArchiveAfterEnd, policy.ChatArchiveAfterDisputeResolve)
		if !ok || now.Before(archiveAt) {
			continue
		}

		if _, err := s.bookingRepo.SetChatArchived(ctx, s.db, row.ID, now); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Error("chat archive failed",
				zap.String("booking_id", row.ID.String()), zap.Error(err))
		}
	}
	return jobErr
}
