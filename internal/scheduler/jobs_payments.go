package scheduler

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	paymentdomain "github.com/roamlabs/fieldtrip/internal/payment/domain"
	"go.uber.org/zap"
)

// ReconcilePaymentsJob polls the gateway for INITIATED payments whose
// webhook never arrived. A captured session is applied through the same
// idempotent path the webhook uses; a session the gateway no longer
// recognizes is terminal.
func (s *Scheduler) ReconcilePaymentsJob(ctx context.Context) error {
	records, err := s.payments.ListInitiatedWithSession(ctx, s.db, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	var jobErr error
	for _, record := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		session, err := s.gateway.RetrieveCheckoutSession(ctx, record.StripeSessionID)
		if err != nil {
			if errors.Is(err, paymentdomain.ErrSessionNotFound) || errors.Is(err, paymentdomain.ErrModeMismatch) {
				s.log.Warn("initiated payment is unrecoverable",
					zap.String("booking_id", record.BookingID.String()),
					zap.String("session_id", record.StripeSessionID),
					zap.Error(err))
				if _, mErr := s.payments.MarkFailed(ctx, s.db, record.BookingID, s.clock.Now()); mErr != nil {
					jobErr = errors.Join(jobErr, mErr)
				}
				continue
			}
			jobErr = errors.Join(jobErr, err)
			continue
		}

		if !session.Paid() {
			continue
		}

		if err := s.bookingSvc.ApplyPaymentSuccess(ctx, bookingdomain.PaymentSuccess{
			BookingID:       record.BookingID,
			SessionID:       session.ID,
			PaymentIntentID: session.PaymentIntentID,
			Amount:          session.AmountTotal,
			Currency:        session.Currency,
			IsDeposit:       record.IsDeposit,
		}); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Error("payment reconciliation failed",
				zap.String("booking_id", record.BookingID.String()), zap.Error(err))
		}
	}
	return jobErr
}

// RefundRetryJob re-runs failed refunds once their backoff elapses.
// Exhausted bookings stay REFUND_FAILED for manual follow-up.
func (s *Scheduler) RefundRetryJob(ctx context.Context) error {
	now := s.clock.Now()
	policy := s.policy.Get()

	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT id
		 FROM bookings
		 WHERE status = ?
		   AND refund_attempts < ?
		   AND (last_refund_attempt_at IS NULL OR last_refund_attempt_at <= ?)
		 ORDER BY last_refund_attempt_at ASC
		 LIMIT ?`,
		string(bookingdomain.StatusRefundFailed),
		policy.RefundMaxAttempts,
		now.Add(-policy.RefundRetryBackoff),
		s.cfg.BatchSize,
	).Scan(&ids).Error
	if err != nil {
		return err
	}

	var jobErr error
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.bookingSvc.RetryRefund(ctx, id); err != nil {
			if errors.Is(err, bookingdomain.ErrRefundExhausted) {
				s.log.Warn("refund attempts exhausted", zap.String("booking_id", id.String()))
				continue
			}
			jobErr = errors.Join(jobErr, err)
			s.log.Error("refund retry failed",
				zap.String("booking_id", id.String()), zap.Error(err))
		}
	}
	return jobErr
}
