package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	"github.com/roamlabs/fieldtrip/internal/clock"
	"github.com/roamlabs/fieldtrip/internal/config"
	obsmetrics "github.com/roamlabs/fieldtrip/internal/observability/metrics"
	paymentdomain "github.com/roamlabs/fieldtrip/internal/payment/domain"
	"github.com/roamlabs/fieldtrip/internal/payment/gateway/stripe"
	userdomain "github.com/roamlabs/fieldtrip/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// allowedEvents is the ingest allow-list. Everything else is acknowledged
// and counted as ignored so the provider stops redelivering.
var allowedEvents = map[string]bool{
	"checkout.session.completed":    true,
	"payment_intent.succeeded":      true,
	"payment_intent.payment_failed": true,
	"charge.refunded":               true,
	"refund.updated":                true,
	"charge.dispute.created":        true,
	"charge.dispute.closed":         true,
	"account.updated":               true,
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Repo     paymentdomain.Repository
	Users    userdomain.Repository
	Bookings bookingdomain.Service
}

// Ingestor verifies, dedups and dispatches provider webhooks. Event ids
// are recorded before dispatch so a redelivery of a processed event is
// acknowledged without side effects.
type Ingestor struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	repo     paymentdomain.Repository
	users    userdomain.Repository
	bookings bookingdomain.Service
}

func NewIngestor(p Params) *Ingestor {
	return &Ingestor{
		db:       p.DB,
		log:      p.Log.Named("payment.webhook"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		repo:     p.Repo,
		users:    p.Users,
		bookings: p.Bookings,
	}
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (i *Ingestor) Ingest(ctx context.Context, payload []byte, signature string) error {
	if err := stripe.VerifySignature(payload, signature, i.cfg.StripeWebhookSecret, i.clock.Now()); err != nil {
		obsmetrics.Payment().IncWebhookEvent("unknown", obsmetrics.WebhookOutcomeFailed)
		return err
	}

	var evt eventEnvelope
	if err := json.Unmarshal(payload, &evt); err != nil {
		obsmetrics.Payment().IncWebhookEvent("unknown", obsmetrics.WebhookOutcomeFailed)
		return paymentdomain.ErrInvalidPayload
	}
	if evt.ID == "" || evt.Type == "" {
		obsmetrics.Payment().IncWebhookEvent("unknown", obsmetrics.WebhookOutcomeFailed)
		return paymentdomain.ErrInvalidEvent
	}

	if !allowedEvents[evt.Type] {
		obsmetrics.Payment().IncWebhookEvent(evt.Type, obsmetrics.WebhookOutcomeIgnored)
		i.log.Debug("webhook event type ignored", zap.String("event_type", evt.Type))
		return nil
	}

	now := i.clock.Now()
	record := &paymentdomain.WebhookEventRecord{
		ID:         i.genID.Generate(),
		EventID:    evt.ID,
		EventType:  evt.Type,
		Payload:    payload,
		ReceivedAt: now,
	}
	inserted, err := i.repo.InsertEvent(ctx, i.db, record)
	if err != nil {
		return err
	}
	if !inserted {
		stored, err := i.repo.FindEvent(ctx, i.db, evt.ID)
		if err != nil {
			return err
		}
		if stored.ProcessedAt != nil {
			obsmetrics.Payment().IncWebhookEvent(evt.Type, obsmetrics.WebhookOutcomeDuplicate)
			i.log.Debug("webhook event already processed", zap.String("event_id", evt.ID))
			return nil
		}
		// Recorded but never finished: a crash mid-dispatch. The handlers
		// are idempotent, so run it again.
		record = stored
	}

	if err := i.dispatch(ctx, evt); err != nil {
		obsmetrics.Payment().IncWebhookEvent(evt.Type, obsmetrics.WebhookOutcomeFailed)
		return err
	}

	if err := i.repo.MarkEventProcessed(ctx, i.db, record.ID, i.clock.Now()); err != nil {
		return err
	}
	obsmetrics.Payment().IncWebhookEvent(evt.Type, obsmetrics.WebhookOutcomeProcessed)
	return nil
}

func (i *Ingestor) dispatch(ctx context.Context, evt eventEnvelope) error {
	switch evt.Type {
	case "checkout.session.completed":
		return i.handleCheckoutCompleted(ctx, evt.Data.Object)
	case "payment_intent.succeeded":
		return i.handleIntentSucceeded(ctx, evt.Data.Object)
	case "payment_intent.payment_failed":
		return i.handleIntentFailed(ctx, evt.Data.Object)
	case "charge.refunded":
		return i.handleChargeRefunded(ctx, evt.Data.Object)
	case "refund.updated":
		return i.handleRefundUpdated(ctx, evt.Data.Object)
	case "charge.dispute.created":
		return i.handleDisputeCreated(ctx, evt.Data.Object)
	case "charge.dispute.closed":
		return i.handleDisputeClosed(ctx, evt.Data.Object)
	case "account.updated":
		return i.handleAccountUpdated(ctx, evt.Data.Object)
	}
	return nil
}

type checkoutSessionObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

func (i *Ingestor) handleCheckoutCompleted(ctx context.Context, raw json.RawMessage) error {
	var obj checkoutSessionObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	if obj.PaymentStatus != "paid" {
		i.log.Debug("checkout completed without capture", zap.String("session_id", obj.ID))
		return nil
	}
	bookingID, err := bookingIDFromMetadata(obj.Metadata)
	if err != nil {
		return err
	}
	return i.bookings.ApplyPaymentSuccess(ctx, bookingdomain.PaymentSuccess{
		BookingID:       bookingID,
		SessionID:       obj.ID,
		PaymentIntentID: obj.PaymentIntent,
		Amount:          obj.AmountTotal,
		Currency:        obj.Currency,
		IsDeposit:       obj.Metadata["is_deposit"] == "true",
	})
}

type paymentIntentObject struct {
	ID           string            `json:"id"`
	LatestCharge string            `json:"latest_charge"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

func (i *Ingestor) handleIntentSucceeded(ctx context.Context, raw json.RawMessage) error {
	var obj paymentIntentObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	bookingID, err := bookingIDFromMetadata(obj.Metadata)
	if err != nil {
		// Intents created outside checkout carry no metadata; the
		// payment record is the fallback mapping.
		record, rErr := i.repo.FindByPaymentIntent(ctx, i.db, obj.ID)
		if rErr != nil {
			if errors.Is(rErr, paymentdomain.ErrNotFound) {
				i.log.Warn("intent succeeded for unknown booking", zap.String("intent_id", obj.ID))
				return nil
			}
			return rErr
		}
		bookingID = record.BookingID
	}
	return i.bookings.ApplyPaymentSuccess(ctx, bookingdomain.PaymentSuccess{
		BookingID:       bookingID,
		PaymentIntentID: obj.ID,
		ChargeID:        obj.LatestCharge,
		Amount:          obj.Amount,
		Currency:        obj.Currency,
		IsDeposit:       obj.Metadata["is_deposit"] == "true",
	})
}

func (i *Ingestor) handleIntentFailed(ctx context.Context, raw json.RawMessage) error {
	var obj paymentIntentObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	record, err := i.repo.FindByPaymentIntent(ctx, i.db, obj.ID)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrNotFound) {
			return nil
		}
		return err
	}
	_, err = i.repo.MarkFailed(ctx, i.db, record.BookingID, i.clock.Now())
	return err
}

type chargeObject struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
}

func (i *Ingestor) handleChargeRefunded(ctx context.Context, raw json.RawMessage) error {
	var obj chargeObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	record, err := i.repo.FindByPaymentIntent(ctx, i.db, obj.PaymentIntent)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrNotFound) {
			i.log.Warn("refund for unknown intent", zap.String("intent_id", obj.PaymentIntent))
			return nil
		}
		return err
	}
	return i.bookings.ApplyRefundSucceeded(ctx, record.BookingID)
}

type refundObject struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Status        string `json:"status"`
}

func (i *Ingestor) handleRefundUpdated(ctx context.Context, raw json.RawMessage) error {
	var obj refundObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	record, err := i.repo.FindByPaymentIntent(ctx, i.db, obj.PaymentIntent)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrNotFound) {
			return nil
		}
		return err
	}
	switch obj.Status {
	case "succeeded":
		return i.bookings.ApplyRefundSucceeded(ctx, record.BookingID)
	case "failed", "canceled":
		return i.bookings.MarkRefundFailed(ctx, record.BookingID)
	}
	return nil
}

type disputeObject struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Status        string `json:"status"`
}

func (i *Ingestor) handleDisputeCreated(ctx context.Context, raw json.RawMessage) error {
	var obj disputeObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	record, err := i.repo.FindByPaymentIntent(ctx, i.db, obj.PaymentIntent)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrNotFound) {
			i.log.Warn("dispute for unknown intent", zap.String("intent_id", obj.PaymentIntent))
			return nil
		}
		return err
	}
	return i.bookings.ApplyProviderDisputeOpened(ctx, record.BookingID)
}

func (i *Ingestor) handleDisputeClosed(ctx context.Context, raw json.RawMessage) error {
	var obj disputeObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	record, err := i.repo.FindByPaymentIntent(ctx, i.db, obj.PaymentIntent)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrNotFound) {
			return nil
		}
		return err
	}
	// Stripe reports the merchant's outcome: "won" means the host keeps
	// the money.
	return i.bookings.ApplyProviderDisputeClosed(ctx, record.BookingID, obj.Status == "won")
}

type accountObject struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

func (i *Ingestor) handleAccountUpdated(ctx context.Context, raw json.RawMessage) error {
	var obj accountObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	updated, err := i.users.SyncStripeAccount(ctx, i.db, obj.ID, obj.ChargesEnabled, obj.PayoutsEnabled, obj.DetailsSubmitted, i.clock.Now())
	if err != nil {
		return err
	}
	if !updated {
		i.log.Debug("account update for unknown host", zap.String("account_id", obj.ID))
	}
	return nil
}

func bookingIDFromMetadata(metadata map[string]string) (snowflake.ID, error) {
	raw := metadata["booking_id"]
	if raw == "" {
		return 0, fmt.Errorf("%w: missing booking_id metadata", paymentdomain.ErrInvalidPayload)
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: bad booking_id metadata", paymentdomain.ErrInvalidPayload)
	}
	return id, nil
}
