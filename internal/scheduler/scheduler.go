package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	"github.com/roamlabs/fieldtrip/internal/clock"
	"github.com/roamlabs/fieldtrip/internal/config"
	experiencedomain "github.com/roamlabs/fieldtrip/internal/experience/domain"
	notificationdomain "github.com/roamlabs/fieldtrip/internal/notification/domain"
	obsmetrics "github.com/roamlabs/fieldtrip/internal/observability/metrics"
	paymentdomain "github.com/roamlabs/fieldtrip/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Policy      *config.PolicyHolder
	BookingSvc  bookingdomain.Service
	BookingRepo bookingdomain.Repository
	Experiences experiencedomain.Repository
	Payments    paymentdomain.Repository
	Gateway     paymentdomain.Gateway
	Notifier    notificationdomain.Service
	Config      Config `optional:"true"`
}

// Scheduler owns the time-driven sweeps: opening attendance windows,
// auto-completing stale bookings, reconciling initiated payments,
// retrying failed refunds, archiving chats and sending reminders. Every
// job fetches one batch per tick and leans on the compare-and-set
// mutations for safety, so overlapping runs converge.
type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	policy      *config.PolicyHolder
	bookingSvc  bookingdomain.Service
	bookingRepo bookingdomain.Repository
	experiences experiencedomain.Repository
	payments    paymentdomain.Repository
	gateway     paymentdomain.Gateway
	notifier    notificationdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Policy == nil ||
		p.BookingSvc == nil || p.BookingRepo == nil || p.Experiences == nil ||
		p.Payments == nil || p.Gateway == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		clock:       p.Clock,
		policy:      p.Policy,
		bookingSvc:  p.BookingSvc,
		bookingRepo: p.BookingRepo,
		experiences: p.Experiences,
		payments:    p.Payments,
		gateway:     p.Gateway,
		notifier:    p.Notifier,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	schedMetrics.IncJobError(name)

	// A deadline is a soft timeout: the next tick picks up the rest.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Timeout time.Duration
		Run     func(context.Context) error
	}{
		{"open_attendance", 30 * time.Second, s.OpenAttendanceJob},
		{"auto_complete", 30 * time.Second, s.AutoCompleteJob},
		{"reconcile_payments", 60 * time.Second, s.ReconcilePaymentsJob},
		{"refund_retry", 60 * time.Second, s.RefundRetryJob},
		{"chat_archive", 30 * time.Second, s.ChatArchiveJob},
		{"reminders", 30 * time.Second, s.RemindersJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		run := job.Run
		err = errors.Join(err, s.runJob(parent, job.Name, job.Timeout, run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
