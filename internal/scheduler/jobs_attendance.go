package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	experiencedomain "github.com/roamlabs/fieldtrip/internal/experience/domain"
	"go.uber.org/zap"
)

// workBooking is a booking row joined with the schedule columns of its
// experience, enough to evaluate the temporal gates in Go.
type workBooking struct {
	ID         snowflake.ID
	ExplorerID snowflake.ID
	HostID     snowflake.ID
	Status     bookingdomain.Status
	CreatedAt  time.Time

	DisputeResolvedAt *time.Time

	ExpID           snowflake.ID
	StartsAt        *time.Time
	EndsAt          *time.Time
	DurationMinutes int
}

// experience rebuilds just enough of the joined listing for the end-time
// fallback chain. A zero ExpID means the listing row is gone.
func (w *workBooking) experience() *experiencedomain.Experience {
	if w.ExpID == 0 {
		return nil
	}
	return &experiencedomain.Experience{
		ID:              w.ExpID,
		StartsAt:        w.StartsAt,
		EndsAt:          w.EndsAt,
		DurationMinutes: w.DurationMinutes,
	}
}

// OpenAttendanceJob moves paid bookings whose experience started long
// enough ago into PENDING_ATTENDANCE so the host can confirm.
func (s *Scheduler) OpenAttendanceJob(ctx context.Context) error {
	now := s.clock.Now()
	policy := s.policy.Get()

	var rows []workBooking
	err := s.db.WithContext(ctx).Raw(
		`SELECT b.id, b.explorer_id, b.host_id, b.status, b.created_at
		 FROM bookings b
		 JOIN experiences e ON e.id = b.experience_id
		 WHERE b.status IN ? AND e.starts_at IS NOT NULL AND e.starts_at <= ?
		 ORDER BY e.starts_at ASC
		 LIMIT ?`,
		[]string{string(bookingdomain.StatusPaid), string(bookingdomain.StatusDepositPaid)},
		now.Add(-policy.AttendanceWindowOpenDelay),
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
		if err := s.bookingSvc.OpenAttendance(ctx, row.ID); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Error("open attendance failed",
				zap.String("booking_id", row.ID.String()), zap.Error(err))
		}
	}
	return jobErr
}

// AutoCompleteJob completes bookings the host never confirmed once the
// grace period after the effective end time elapses.
func (s *Scheduler) AutoCompleteJob(ctx context.Context) error {
	now := s.clock.Now()
	policy := s.policy.Get()

	var rows []workBooking
	err := s.db.WithContext(ctx).Raw(
		`SELECT b.id, b.explorer_id, b.host_id, b.status, b.created_at,
		        e.id AS exp_id, e.starts_at, e.ends_at, e.duration_minutes
		 FROM bookings b
		 LEFT JOIN experiences e ON e.id = b.experience_id
		 WHERE b.status = ?
		 ORDER BY b.created_at ASC
		 LIMIT ?`,
		string(bookingdomain.StatusPendingAttendance),
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
		end, _ := bookingdomain.EffectiveEndTime(row.experience(), row.CreatedAt)
		if now.Before(end.Add(policy.AutoCompleteAfter)) {
			continue
		}
		if err := s.bookingSvc.AutoComplete(ctx, row.ID); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Error("auto complete failed",
				zap.String("booking_id", row.ID.String()), zap.Error(err))
		}
	}
	return jobErr
}
