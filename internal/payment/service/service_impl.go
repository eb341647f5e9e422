package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	"github.com/roamlabs/fieldtrip/internal/clock"
	"github.com/roamlabs/fieldtrip/internal/config"
	experiencedomain "github.com/roamlabs/fieldtrip/internal/experience/domain"
	obsmetrics "github.com/roamlabs/fieldtrip/internal/observability/metrics"
	paymentdomain "github.com/roamlabs/fieldtrip/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Cfg     config.Config
	Policy  *config.PolicyHolder
	Repo    paymentdomain.Repository
	Gateway paymentdomain.Gateway
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     config.Config
	policy  *config.PolicyHolder
	repo    paymentdomain.Repository
	gateway paymentdomain.Gateway
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("payment.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Cfg,
		policy:  p.Policy,
		repo:    p.Repo,
		gateway: p.Gateway,
	}
}

// CreateCheckout opens a gateway checkout session for a pending booking
// and records the INITIATED payment. Free experiences charge the fixed
// commitment deposit instead of a price.
func (s *Service) CreateCheckout(
	ctx context.Context,
	booking *bookingdomain.Booking,
	exp *experiencedomain.Experience,
	hostStripeAccountID string,
) (string, error) {
	if booking == nil || exp == nil {
		return "", paymentdomain.ErrInvalidConfig
	}

	policy := s.policy.Get()
	amount := booking.ChargedAmount()
	fee := amount * policy.PlatformFeePercent / 100

	req := paymentdomain.CreateCheckoutSessionRequest{
		BookingID:   booking.ID,
		Amount:      amount,
		Currency:    booking.Currency,
		ProductName: exp.Title,
		IsDeposit:   booking.IsDeposit,
		SuccessURL:  s.cfg.CheckoutSuccessURL,
		CancelURL:   s.cfg.CheckoutCancelURL,
	}
	if hostStripeAccountID != "" && !booking.IsDeposit {
		req.DestinationAccountID = hostStripeAccountID
		req.ApplicationFeeAmount = fee
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	record := &paymentdomain.PaymentRecord{
		ID:                    s.genID.Generate(),
		BookingID:             booking.ID,
		HostID:                booking.HostID,
		ExplorerID:            booking.ExplorerID,
		StripeSessionID:       session.ID,
		StripePaymentIntentID: session.PaymentIntentID,
		Amount:                amount,
		Currency:              strings.ToUpper(booking.Currency),
		IsDeposit:             booking.IsDeposit,
		Status:                paymentdomain.PaymentStatusInitiated,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		return "", err
	}

	return session.URL, nil
}

// Refund pushes a refund through the gateway. The idempotency key is
// derived from booking id and attempt number, so a crashed attempt can be
// replayed without double-refunding.
func (s *Service) Refund(ctx context.Context, booking *bookingdomain.Booking, attempt int, reason string) (string, error) {
	if booking == nil {
		return "", paymentdomain.ErrInvalidConfig
	}
	record, err := s.repo.FindByBooking(ctx, s.db, booking.ID)
	if err != nil {
		return "", err
	}

	refund, err := s.gateway.CreateRefund(ctx, paymentdomain.CreateRefundRequest{
		PaymentIntentID: record.StripePaymentIntentID,
		ChargeID:        record.StripeChargeID,
		Amount:          booking.ChargedAmount(),
		Reason:          reason,
		IdempotencyKey:  RefundIdempotencyKey(booking.ID, attempt),
	})
	if err != nil {
		obsmetrics.Payment().IncRefundAttempt(obsmetrics.RefundOutcomeFailed)
		return "", err
	}
	obsmetrics.Payment().IncRefundAttempt(obsmetrics.RefundOutcomeSucceeded)

	if _, err := s.repo.MarkRefunded(ctx, s.db, booking.ID, refund.ID, s.clock.Now()); err != nil {
		return "", err
	}
	return refund.ID, nil
}

func (s *Service) MarkFailedByIntent(ctx context.Context, intentID string) error {
	record, err := s.repo.FindByPaymentIntent(ctx, s.db, intentID)
	if err != nil {
		return err
	}
	_, err = s.repo.MarkFailed(ctx, s.db, record.BookingID, s.clock.Now())
	return err
}

// RefundIdempotencyKey is stable per booking and attempt. uuid v5 keeps
// it inside the gateway's key length limit regardless of id width.
func RefundIdempotencyKey(bookingID snowflake.ID, attempt int) string {
	name := fmt.Sprintf("fieldtrip/refund/%s/%d", bookingID.String(), attempt)
	return "rf_" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
