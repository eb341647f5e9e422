package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	experiencedomain "github.com/roamlabs/fieldtrip/internal/experience/domain"
	notificationdomain "github.com/roamlabs/fieldtrip/internal/notification/domain"
	"go.uber.org/zap"
)

// RemindersJob nudges both sides ahead of the start time. The sent flags
// are flipped with a compare-and-set so a reminder goes out once even
// when ticks overlap.
func (s *Scheduler) RemindersJob(ctx context.Context) error {
	return errors.Join(
		s.explorerReminders(ctx),
		s.hostReminders(ctx),
	)
}

func (s *Scheduler) explorerReminders(ctx context.Context) error {
	now := s.clock.Now()
	lead := s.policy.Get().ReminderLead

	var rows []struct {
		ID         snowflake.ID
		ExplorerID snowflake.ID
		StartsAt   *time.Time
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT b.id, b.explorer_id, e.starts_at
		 FROM bookings b
		 JOIN experiences e ON e.id = b.experience_id
		 WHERE b.reminder_sent = FALSE
		   AND b.status IN ?
		   AND e.starts_at IS NOT NULL AND e.starts_at > ? AND e.starts_at <= ?
		 ORDER BY e.starts_at ASC
		 LIMIT ?`,
		[]string{string(bookingdomain.StatusPaid), string(bookingdomain.StatusDepositPaid)},
		now,
		now.Add(lead),
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
		sent, err := s.bookingRepo.MarkReminderSent(ctx, s.db, row.ID, now)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Error("explorer reminder failed",
				zap.String("booking_id", row.ID.String()), zap.Error(err))
			continue
		}
		if !sent {
			continue
		}
		s.notifier.Notify(ctx, notificationdomain.NotifyRequest{
			UserID:  row.ExplorerID,
			Type:    notificationdomain.TypeBookingReminder,
			Title:   "Upcoming experience",
			Message: "Your experience starts soon.",
			Data:    map[string]any{"booking_id": row.ID.String()},
		})
	}
	return jobErr
}

func (s *Scheduler) hostReminders(ctx context.Context) error {
	now := s.clock.Now()
	lead := s.policy.Get().ReminderLead

	var rows []struct {
		ID       snowflake.ID
		HostID   snowflake.ID
		StartsAt *time.Time
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, host_id, starts_at
		 FROM experiences
		 WHERE host_reminder_sent = FALSE
		   AND status = ?
		   AND starts_at IS NOT NULL AND starts_at > ? AND starts_at <= ?
		 ORDER BY starts_at ASC
		 LIMIT ?`,
		experiencedomain.StatusPublished,
		now,
		now.Add(lead),
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
		sent, err := s.experiences.MarkHostReminderSent(ctx, s.db, row.ID, now)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Error("host reminder failed",
				zap.String("experience_id", row.ID.String()), zap.Error(err))
			continue
		}
		if !sent {
			continue
		}
		s.notifier.Notify(ctx, notificationdomain.NotifyRequest{
			UserID:  row.HostID,
			Type:    notificationdomain.TypeBookingReminder,
			Title:   "Upcoming experience",
			Message: "Your experience starts soon.",
			Data:    map[string]any{"experience_id": row.ID.String()},
		})
	}
	return jobErr
}
