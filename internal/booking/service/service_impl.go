package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/roamlabs/fieldtrip/internal/booking/domain"
	"github.com/roamlabs/fieldtrip/internal/clock"
	"github.com/roamlabs/fieldtrip/internal/config"
	disputedomain "github.com/roamlabs/fieldtrip/internal/dispute/domain"
	experiencedomain "github.com/roamlabs/fieldtrip/internal/experience/domain"
	notificationdomain "github.com/roamlabs/fieldtrip/internal/notification/domain"
	paymentdomain "github.com/roamlabs/fieldtrip/internal/payment/domain"
	paymentservice "github.com/roamlabs/fieldtrip/internal/payment/service"
	userdomain "github.com/roamlabs/fieldtrip/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.PolicyHolder
	Bookings    domain.Repository
	Experiences experiencedomain.Repository
	Users       userdomain.Repository
	Payments    paymentdomain.Repository
	Disputes    disputedomain.Repository
	PaymentSvc  *paymentservice.Service
	Notifier    notificationdomain.Service
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PolicyHolder
	bookings    domain.Repository
	experiences experiencedomain.Repository
	users       userdomain.Repository
	payments    paymentdomain.Repository
	disputes    disputedomain.Repository
	paymentSvc  *paymentservice.Service
	notifier    notificationdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("booking.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		bookings:    p.Bookings,
		experiences: p.Experiences,
		users:       p.Users,
		payments:    p.Payments,
		disputes:    p.Disputes,
		paymentSvc:  p.PaymentSvc,
		notifier:    p.Notifier,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateBookingRequest) (*domain.CreateBookingResponse, error) {
	if req.Quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	explorer, err := s.users.Find(ctx, s.db, req.ExplorerID)
	if err != nil {
		return nil, err
	}
	if explorer.IsBanned {
		return nil, userdomain.ErrBanned
	}

	exp, err := s.experiences.Find(ctx, s.db, req.ExperienceID)
	if err != nil {
		return nil, err
	}
	if !exp.Bookable() {
		return nil, experiencedomain.ErrInactive
	}

	host, err := s.users.Find(ctx, s.db, exp.HostID)
	if err != nil {
		return nil, err
	}
	if host.IsBanned {
		return nil, userdomain.ErrBanned
	}

	now := s.clock.Now()
	if exp.StartsAt != nil && !now.Before(*exp.StartsAt) {
		return nil, experiencedomain.ErrStarted
	}
	if exp.ActivityType == experiencedomain.ActivityTypeIndividual && req.Quantity != 1 {
		return nil, domain.ErrInvalidQuantity
	}

	policy := s.policy.Get()
	if exp.IsFree() {
		noShows, err := s.bookings.CountRecentNoShows(ctx, s.db, req.ExplorerID, now.Add(-policy.NoShowBlockWindow))
		if err != nil {
			return nil, err
		}
		if noShows >= int64(policy.NoShowBlockCount) {
			return nil, domain.ErrBlocked
		}
	}

	reserved, err := s.experiences.Reserve(ctx, s.db, exp.ID, req.Quantity, now)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, experiencedomain.ErrSoldOut
	}

	booking := &domain.Booking{
		ID:           s.genID.Generate(),
		ExperienceID: exp.ID,
		ExplorerID:   explorer.ID,
		HostID:       exp.HostID,
		Quantity:     req.Quantity,
		Amount:       exp.PriceAmount * int64(req.Quantity),
		Currency:     exp.Currency,
		IsDeposit:    exp.IsFree(),
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if booking.IsDeposit {
		booking.DepositAmount = policy.DepositAmount
	}

	if err := s.bookings.Insert(ctx, s.db, booking); err != nil {
		s.releaseSeats(ctx, exp.ID, req.Quantity)
		return nil, err
	}

	url, err := s.paymentSvc.CreateCheckout(ctx, booking, exp, host.StripeAccountID)
	if err != nil {
		if _, cErr := s.bookings.SetCancelled(ctx, s.db, booking.ID, []domain.Status{domain.StatusPending}, s.clock.Now()); cErr != nil {
			s.log.Error("cancel after failed checkout", zap.String("booking_id", booking.ID.String()), zap.Error(cErr))
		}
		s.releaseSeats(ctx, exp.ID, req.Quantity)
		return nil, err
	}

	return &domain.CreateBookingResponse{Booking: booking, CheckoutURL: url}, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Booking, error) {
	return s.bookings.Find(ctx, s.db, id)
}

func (s *service) ListByHost(ctx context.Context, hostID snowflake.ID) ([]domain.Booking, error) {
	return s.bookings.ListByHost(ctx, s.db, hostID)
}

func (s *service) ListByExplorer(ctx context.Context, explorerID snowflake.ID) ([]domain.Booking, error) {
	return s.bookings.ListByExplorer(ctx, s.db, explorerID)
}

// ApplyPaymentSuccess converges webhook deliveries, reconciliation finds
// and replays onto a single outcome. Only the writer that wins the
// PENDING compare-and-set rebuilds capacity and notifies.
func (s *service) ApplyPaymentSuccess(ctx context.Context, event domain.PaymentSuccess) error {
	booking, err := s.bookings.Find(ctx, s.db, event.BookingID)
	if err != nil {
		return err
	}

	target := domain.StatusPaid
	if booking.IsDeposit || event.IsDeposit {
		target = domain.StatusDepositPaid
	}

	now := s.clock.Now()
	first, err := s.bookings.MarkPaid(ctx, s.db, booking.ID, target, now)
	if err != nil {
		return err
	}

	// Gateway ids are backfilled on every delivery. Checkout-created
	// records lack the charge id until the first webhook arrives.
	if _, err := s.payments.MarkSucceeded(ctx, s.db, booking.ID, event.SessionID, event.PaymentIntentID, event.ChargeID, now); err != nil {
		return err
	}

	if !first {
		s.log.Debug("payment success replay ignored", zap.String("booking_id", booking.ID.String()))
		return nil
	}

	if err := s.experiences.RecomputeRemaining(ctx, s.db, booking.ExperienceID, now); err != nil {
		return err
	}

	s.notify(ctx, booking.ExplorerID, notificationdomain.TypeBookingPaid,
		"Booking confirmed", "Your booking is confirmed.", booking, false)
	s.notify(ctx, booking.HostID, notificationdomain.TypeBookingPaid,
		"New booking", "A spot on your experience was booked.", booking, false)
	return nil
}

func (s *service) ApplyRefundSucceeded(ctx context.Context, bookingID snowflake.ID) error {
	booking, err := s.bookings.Find(ctx, s.db, bookingID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	changed, err := s.bookings.SetRefunded(ctx, s.db, bookingID, now)
	if err != nil {
		return err
	}
	if changed {
		if _, err := s.payments.MarkRefunded(ctx, s.db, bookingID, "", now); err != nil {
			return err
		}
	}

	// The confirmation email is flag-guarded so webhook plus internal
	// success paths produce exactly one send.
	sent, err := s.bookings.MarkRefundEmailSent(ctx, s.db, bookingID, now)
	if err != nil {
		return err
	}
	if sent {
		s.notify(ctx, booking.ExplorerID, notificationdomain.TypeRefundSucceeded,
			"Refund issued", "Your refund has been processed.", booking, true)
	}
	return nil
}

func (s *service) MarkRefundFailed(ctx context.Context, bookingID snowflake.ID) error {
	booking, err := s.bookings.Find(ctx, s.db, bookingID)
	if err != nil {
		return err
	}
	changed, err := s.bookings.SetRefundFailed(ctx, s.db, bookingID, s.clock.Now())
	if err != nil {
		return err
	}
	if changed {
		s.notify(ctx, booking.ExplorerID, notificationdomain.TypeRefundFailed,
			"Refund delayed", "Your refund could not be processed yet. We will retry automatically.", booking, false)
	}
	return nil
}

func (s *service) ApplyProviderDisputeOpened(ctx context.Context, bookingID snowflake.ID) error {
	booking, err := s.bookings.Find(ctx, s.db, bookingID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	changed, err := s.bookings.SetDisputed(ctx, s.db, bookingID, domain.PaidStatuses(), now)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	report := &disputedomain.Report{
		ID:           s.genID.Generate(),
		BookingID:    booking.ID,
		ExperienceID: booking.ExperienceID,
		HostID:       booking.HostID,
		ReporterID:   booking.ExplorerID,
		Reason:       disputedomain.ReasonOther,
		Comment:      "chargeback opened at the payment provider",
		Status:       disputedomain.ReportStatusOpen,
		CreatedAt:    now,
	}
	if err := s.disputes.Insert(ctx, s.db, report); err != nil {
		return err
	}
	if _, err := s.payments.MarkDisputed(ctx, s.db, bookingID, now); err != nil && !errors.Is(err, paymentdomain.ErrNotFound) {
		return err
	}

	s.notify(ctx, booking.HostID, notificationdomain.TypeDisputeOpened,
		"Payment disputed", "A payment for your experience is being disputed.", booking, false)
	return nil
}

func (s *service) ApplyProviderDisputeClosed(ctx context.Context, bookingID snowflake.ID, won bool) error {
	// A provider-lost dispute already reversed the charge, so no refund
	// is issued on top of it.
	return s.resolveDispute(ctx, bookingID, won, false)
}

func (s *service) Cancel(ctx context.Context, bookingID, actorID snowflake.ID) error {
	booking, err := s.bookings.Find(ctx, s.db, bookingID)
	if err != nil {
		return err
	}
	if actorID != booking.ExplorerID && actorID != booking.HostID {
		return domain.ErrForbidden
	}
	if booking.Status.DisputeLocked() {
		return domain.ErrDisputeLocked
	}

	from := []domain.Status{domain.StatusPending, domain.StatusPaid, domain.StatusDepositPaid}
	changed, err := s.bookings.SetCancelled(ctx, s.db, bookingID, from, s.clock.Now())
	if err != nil {
		return err
	}
	if !changed {
		return fmt.Errorf("%w: cancel from %s", domain.ErrInvalidTransition, booking.Status)
	}

	s.releaseSeats(ctx, booking.ExperienceID, booking.Quantity)

	if booking.Status.IsPaid() {
		if err := s.Refund(ctx, bookingID, "booking_cancelled"); err != nil {
			return err
		}
	}

	counterpart := booking.HostID
	if actorID == booking.HostID {
		counterpart = booking.ExplorerID
	}
	s.notify(ctx, counterpart, notificationdomain.TypeBookingCancelled,
		"Booking cancelled", "A booking was cancelled.", booking, false)
	return nil
}

func (s *service) ConfirmAttendance(ctx context.Context, bookingID, hostID snowflake.ID) error {
	booking, err := s.hostAttendanceChecks(ctx, bookingID, hostID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if booking.Status == domain.StatusPaid || booking.Status == domain.StatusDepositPaid {
		// The sweep normally opens attendance, but a host confirming
		// inside the window must not have to wait for it.
		if _, err := s.bookings.SetPendingAttendance(ctx, s.db, bookingID, now); err != nil {
			return err
		}
	}

	changed, err := s.bookings.SetCompleted(ctx, s.db, bookingID, now.Add(s.policy.Get().PayoutHoldback), now)
	if err != nil {
		return err
	}
	if !changed {
		return fmt.Errorf("%w: confirm from %s", domain.ErrInvalidTransition, booking.Status)
	}

	s.notify(ctx, booking.ExplorerID, notificationdomain.TypeBookingCompleted,
		"Attendance confirmed", "The host confirmed your attendance.", booking, false)
	return nil
}

func (s *service) MarkNoShow(ctx context.Context, bookingID, hostID snowflake.ID) error {
	booking, err := s.hostAttendanceChecks(ctx, bookingID, hostID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if booking.Status == domain.StatusPaid || booking.Status == domain.StatusDepositPaid {
		if _, err := s.bookings.SetPendingAttendance(ctx, s.db, bookingID, now); err != nil {
			return err
		}
	}

	changed, err := s.bookings.SetNoShow(ctx, s.db, bookingID, now)
	if err != nil {
		return err
	}
	if !changed {
		return fmt.Errorf("%w: no-show from %s", domain.ErrInvalidTransition, booking.Status)
	}

	s.notify(ctx, booking.ExplorerID, notificationdomain.TypeBookingNoShow,
		"Marked as no-show", "The host reported you did not attend.", booking, false)
	return nil
}

// hostAttendanceChecks gates host attendance actions on ownership, the
// dispute lock and the attendance window.
func (s *service) hostAttendanceChecks(ctx context.Context, bookingID, hostID snowflake.ID) (*domain.Booking, error) {
	booking, err := s.bookings.Find(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.HostID != hostID {
		return nil, domain.ErrForbidden
	}
	if booking.Status.DisputeLocked() {
		return nil, domain.ErrDisputeLocked
	}

	exp, err := s.experiences.Find(ctx, s.db, booking.ExperienceID)
	if err != nil && !errors.Is(err, experiencedomain.ErrNotFound) {
		return nil, err
	}

	policy := s.policy.Get()
	now := s.clock.Now()
	if exp != nil && exp.StartsAt != nil && now.Before(exp.StartsAt.Add(policy.AttendanceWindowOpenDelay)) {
		return nil, domain.ErrOutsideWindow
	}
	end, _ := domain.EffectiveEndTime(exp, booking.CreatedAt)
	if now.After(end.Add(policy.AttendanceWindowClose)) {
		return nil, domain.ErrOutsideWindow
	}
	return booking, nil
}

func (s *service) OpenDispute(ctx context.Context, req domain.OpenDisputeRequest) error {
	if !disputedomain.ValidReason(req.Reason) {
		return domain.ErrInvalidReason
	}
	policy := s.policy.Get()
	if utf8.RuneCountInString(req.Comment) > policy.DisputeCommentMaxLen {
		return domain.ErrCommentTooLong
	}

	booking, err := s.bookings.Find(ctx, s.db, req.BookingID)
	if err != nil {
		return err
	}
	if booking.ExplorerID != req.ReporterID {
		return domain.ErrForbidden
	}

	exp, err := s.experiences.Find(ctx, s.db, booking.ExperienceID)
	if err != nil && !errors.Is(err, experiencedomain.ErrNotFound) {
		return err
	}

	now := s.clock.Now()
	end, _ := domain.EffectiveEndTime(exp, booking.CreatedAt)
	if now.Before(end.Add(policy.DisputeWindowOpenDelay)) || now.After(end.Add(policy.DisputeWindowClose)) {
		return domain.ErrOutsideWindow
	}

	from := []domain.Status{
		domain.StatusDepositPaid,
		domain.StatusPaid,
		domain.StatusPendingAttendance,
		domain.StatusCompleted,
		domain.StatusAutoCompleted,
		domain.StatusNoShow,
	}
	changed, err := s.bookings.SetDisputed(ctx, s.db, req.BookingID, from, now)
	if err != nil {
		return err
	}
	if !changed {
		if booking.Status.DisputeLocked() {
			return domain.ErrDisputeLocked
		}
		return fmt.Errorf("%w: dispute from %s", domain.ErrInvalidTransition, booking.Status)
	}

	report := &disputedomain.Report{
		ID:           s.genID.Generate(),
		BookingID:    booking.ID,
		ExperienceID: booking.ExperienceID,
		HostID:       booking.HostID,
		ReporterID:   req.ReporterID,
		Reason:       req.Reason,
		Comment:      req.Comment,
		Status:       disputedomain.ReportStatusOpen,
		CreatedAt:    now,
	}
	if err := s.disputes.Insert(ctx, s.db, report); err != nil {
		return err
	}
	if _, err := s.payments.MarkDisputed(ctx, s.db, booking.ID, now); err != nil && !errors.Is(err, paymentdomain.ErrNotFound) {
		return err
	}

	s.notify(ctx, booking.HostID, notificationdomain.TypeDisputeOpened,
		"Dispute opened", "An explorer reported a problem with your experience.", booking, false)
	return nil
}

func (s *service) ResolveDispute(ctx context.Context, bookingID snowflake.ID, won bool) error {
	return s.resolveDispute(ctx, bookingID, won, true)
}

func (s *service) resolveDispute(ctx context.Context, bookingID snowflake.ID, won, refundOnLoss bool) error {
	booking, err := s.bookings.Find(ctx, s.db, bookingID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	var payoutAt *time.Time
	if won {
		// The holdback restarts from when the trip actually completed,
		// not from when support closed the dispute.
		base := now
		if booking.CompletedAt != nil {
			base = *booking.CompletedAt
		}
		t := base.Add(s.policy.Get().PayoutHoldback)
		payoutAt = &t
	}

	changed, err := s.bookings.SetDisputeResolved(ctx, s.db, bookingID, won, payoutAt, now)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	action := "DISPUTE_LOST"
	if won {
		action = "DISPUTE_WON"
	}
	if report, err := s.disputes.FindOpenByBooking(ctx, s.db, bookingID); err == nil {
		if _, err := s.disputes.Close(ctx, s.db, report.ID, disputedomain.ReportStatusHandled, action, now); err != nil {
			return err
		}
	} else if !errors.Is(err, disputedomain.ErrNotFound) {
		return err
	}

	if !won && refundOnLoss {
		if err := s.Refund(ctx, bookingID, "dispute_lost"); err != nil {
			return err
		}
	}

	s.notify(ctx, booking.HostID, notificationdomain.TypeDisputeResolved,
		"Dispute resolved", "The dispute on your booking was resolved.", booking, false)
	s.notify(ctx, booking.ExplorerID, notificationdomain.TypeDisputeResolved,
		"Dispute resolved", "Your dispute was resolved.", booking, false)
	return nil
}

// Refund attempts the gateway refund once. A gateway failure marks the
// booking REFUND_FAILED and returns nil so the retry sweep owns the
// follow-up.
func (s *service) Refund(ctx context.Context, bookingID snowflake.ID, reason string) error {
	booking, err := s.bookings.Find(ctx, s.db, bookingID)
	if err != nil {
		return err
	}

	policy := s.policy.Get()
	if booking.RefundAttempts >= policy.RefundMaxAttempts {
		return domain.ErrRefundExhausted
	}

	attempt := booking.RefundAttempts + 1
	if _, err := s.paymentSvc.Refund(ctx, booking, attempt, reason); err != nil {
		s.log.Warn("refund attempt failed",
			zap.String("booking_id", bookingID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if _, fErr := s.bookings.SetRefundFailed(ctx, s.db, bookingID, s.clock.Now()); fErr != nil {
			return fErr
		}
		return nil
	}

	return s.ApplyRefundSucceeded(ctx, bookingID)
}

func (s *service) RetryRefund(ctx context.Context, bookingID snowflake.ID) error {
	booking, err := s.bookings.Find(ctx, s.db, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != domain.StatusRefundFailed {
		return nil
	}

	policy := s.policy.Get()
	if booking.RefundAttempts >= policy.RefundMaxAttempts {
		return domain.ErrRefundExhausted
	}
	if booking.LastRefundAttemptAt != nil &&
		s.clock.Now().Before(booking.LastRefundAttemptAt.Add(policy.RefundRetryBackoff)) {
		return nil
	}

	return s.Refund(ctx, bookingID, "refund_retry")
}

func (s *service) OpenAttendance(ctx context.Context, bookingID snowflake.ID) error {
	booking, err := s.bookings.Find(ctx, s.db, bookingID)
	if err != nil {
		return err
	}
	changed, err := s.bookings.SetPendingAttendance(ctx, s.db, bookingID, s.clock.Now())
	if err != nil {
		return err
	}
	if changed {
		s.notify(ctx, booking.HostID, notificationdomain.TypeAttendanceOpen,
			"Confirm attendance", "Please confirm whether your explorer attended.", booking, false)
	}
	return nil
}

func (s *service) AutoComplete(ctx context.Context, bookingID snowflake.ID) error {
	booking, err := s.bookings.Find(ctx, s.db, bookingID)
	if err != nil {
		return err
	}

	exp, err := s.experiences.Find(ctx, s.db, booking.ExperienceID)
	if err != nil && !errors.Is(err, experiencedomain.ErrNotFound) {
		return err
	}
	end, confidence := domain.EffectiveEndTime(exp, booking.CreatedAt)

	// Completion is backdated to the effective end of the experience so the
	// payout holdback counts from when the trip ended, not from whenever the
	// sweep happened to run.
	now := s.clock.Now()
	changed, err := s.bookings.SetAutoCompleted(ctx, s.db, bookingID, end, end.Add(s.policy.Get().PayoutHoldback), now)
	if err != nil {
		return err
	}
	if changed {
		s.log.Info("booking auto-completed",
			zap.String("booking_id", bookingID.String()),
			zap.String("end_time_confidence", string(confidence)))
	}
	return nil
}

func (s *service) releaseSeats(ctx context.Context, experienceID snowflake.ID, quantity int) {
	if err := s.experiences.Release(ctx, s.db, experienceID, quantity, s.clock.Now()); err != nil {
		s.log.Error("seat release failed",
			zap.String("experience_id", experienceID.String()), zap.Error(err))
	}
}

func (s *service) notify(ctx context.Context, userID snowflake.ID, typ, title, message string, booking *domain.Booking, withEmail bool) {
	req := notificationdomain.NotifyRequest{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message,
		Data: map[string]any{
			"booking_id":    booking.ID.String(),
			"experience_id": booking.ExperienceID.String(),
		},
	}
	if withEmail {
		if user, err := s.users.Find(ctx, s.db, userID); err == nil {
			req.Email = user.Email
		}
	}
	s.notifier.Notify(ctx, req)
}
