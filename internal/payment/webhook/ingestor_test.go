package webhook_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	bookingrepo "github.com/roamlabs/fieldtrip/internal/booking/repository"
	bookingservice "github.com/roamlabs/fieldtrip/internal/booking/service"
	"github.com/roamlabs/fieldtrip/internal/clock"
	"github.com/roamlabs/fieldtrip/internal/config"
	disputerepo "github.com/roamlabs/fieldtrip/internal/dispute/repository"
	experiencerepo "github.com/roamlabs/fieldtrip/internal/experience/repository"
	notificationdomain "github.com/roamlabs/fieldtrip/internal/notification/domain"
	paymentdomain "github.com/roamlabs/fieldtrip/internal/payment/domain"
	"github.com/roamlabs/fieldtrip/internal/payment/gateway/stripe"
	paymentrepo "github.com/roamlabs/fieldtrip/internal/payment/repository"
	paymentservice "github.com/roamlabs/fieldtrip/internal/payment/service"
	paymentwebhook "github.com/roamlabs/fieldtrip/internal/payment/webhook"
	userrepo "github.com/roamlabs/fieldtrip/internal/user/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, req notificationdomain.NotifyRequest) {}

type stubGateway struct{}

func (stubGateway) CreateCheckoutSession(ctx context.Context, req paymentdomain.CreateCheckoutSessionRequest) (*paymentdomain.CheckoutSession, error) {
	return &paymentdomain.CheckoutSession{ID: "cs_stub", URL: "https://checkout.test/cs_stub"}, nil
}

func (stubGateway) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*paymentdomain.CheckoutSession, error) {
	return nil, paymentdomain.ErrSessionNotFound
}

func (stubGateway) CreateRefund(ctx context.Context, req paymentdomain.CreateRefundRequest) (*paymentdomain.Refund, error) {
	return &paymentdomain.Refund{ID: "re_stub", Status: "succeeded"}, nil
}

type webhookFixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
	ingestor *paymentwebhook.Ingestor
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	db := setupWebhookTestDB(t)
	node, err := snowflake.NewNode(9)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	policy := config.NewStaticPolicyHolder(config.DefaultPolicyConfig())
	cfg := config.Config{StripeWebhookSecret: webhookSecret}

	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Cfg: cfg, Policy: policy,
		Repo: paymentrepo.Provide(), Gateway: stubGateway{},
	})
	bookingSvc := bookingservice.NewService(bookingservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Policy: policy,
		Bookings: bookingrepo.Provide(), Experiences: experiencerepo.Provide(),
		Users: userrepo.Provide(), Payments: paymentrepo.Provide(),
		Disputes: disputerepo.Provide(), PaymentSvc: paymentSvc, Notifier: noopNotifier{},
	})

	ingestor := paymentwebhook.NewIngestor(paymentwebhook.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Cfg: cfg,
		Repo: paymentrepo.Provide(), Users: userrepo.Provide(), Bookings: bookingSvc,
	})

	return &webhookFixture{db: db, node: node, clk: clk, ingestor: ingestor}
}

func (f *webhookFixture) seedPaidFlow(t *testing.T, bookingStatus bookingdomain.Status, paymentStatus string) snowflake.ID {
	t.Helper()

	now := f.clk.Now()
	hostID := f.node.Generate()
	explorerID := f.node.Generate()
	expID := f.node.Generate()
	bookingID := f.node.Generate()

	for _, seed := range []struct {
		query string
		args  []any
	}{
		{
			`INSERT INTO users (id, display_name, email, role, is_banned, stripe_account_id, created_at, updated_at)
			 VALUES (?, 'Host', ?, 'host', FALSE, 'acct_h', ?, ?)`,
			[]any{hostID, fmt.Sprintf("h%s@example.com", hostID), now, now},
		},
		{
			`INSERT INTO users (id, display_name, email, role, is_banned, stripe_account_id, created_at, updated_at)
			 VALUES (?, 'Explorer', ?, 'explorer', FALSE, '', ?, ?)`,
			[]any{explorerID, fmt.Sprintf("e%s@example.com", explorerID), now, now},
		},
		{
			`INSERT INTO experiences (id, host_id, title, activity_type, status, price_amount, currency, max_participants, remaining_spots, sold_out, duration_minutes, host_reminder_sent, created_at, updated_at)
			 VALUES (?, ?, 'Tasting menu', 'GROUP', 'PUBLISHED', 6000, 'EUR', 6, 5, FALSE, 0, FALSE, ?, ?)`,
			[]any{expID, hostID, now, now},
		},
		{
			`INSERT INTO bookings (id, experience_id, explorer_id, host_id, quantity, amount, currency, is_deposit, deposit_amount, status, reminder_sent, refund_success_email_sent, refund_attempts, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 1, 6000, 'EUR', FALSE, 0, ?, FALSE, FALSE, 0, ?, ?)`,
			[]any{bookingID, expID, explorerID, hostID, bookingStatus, now, now},
		},
		{
			`INSERT INTO payments (id, booking_id, host_id, explorer_id, stripe_session_id, stripe_payment_intent_id, stripe_charge_id, stripe_refund_id, amount, currency, is_deposit, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, '', '', 6000, 'EUR', FALSE, ?, ?, ?)`,
			[]any{f.node.Generate(), bookingID, hostID, explorerID, "cs_" + bookingID.String(), "pi_" + bookingID.String(), paymentStatus, now, now},
		},
	} {
		if err := f.db.Exec(seed.query, seed.args...).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	return bookingID
}

func (f *webhookFixture) ingest(t *testing.T, eventID, eventType, object string) error {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":"%s","type":"%s","data":{"object":%s}}`, eventID, eventType, object))
	header := stripe.BuildSignatureHeader(payload, webhookSecret, f.clk.Now().Unix())
	return f.ingestor.Ingest(context.Background(), payload, header)
}

func TestIngestRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t)

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)
	header := stripe.BuildSignatureHeader(payload, "whsec_other", f.clk.Now().Unix())

	err := f.ingestor.Ingest(context.Background(), payload, header)
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	assertWebhookCount(t, f.db, "SELECT COUNT(1) FROM webhook_events", 0)
}

func TestIngestCheckoutCompletedMarksBookingPaid(t *testing.T) {
	f := newWebhookFixture(t)
	bookingID := f.seedPaidFlow(t, bookingdomain.StatusPending, paymentdomain.PaymentStatusInitiated)

	object := fmt.Sprintf(
		`{"id":"cs_%s","payment_intent":"pi_%s","payment_status":"paid","amount_total":6000,"currency":"eur","metadata":{"booking_id":"%s"}}`,
		bookingID, bookingID, bookingID,
	)
	if err := f.ingest(t, "evt_checkout_1", "checkout.session.completed", object); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var status string
	if err := f.db.Raw("SELECT status FROM bookings WHERE id = ?", bookingID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(bookingdomain.StatusPaid) {
		t.Fatalf("expected PAID, got %s", status)
	}
	assertWebhookCount(t, f.db, "SELECT COUNT(1) FROM webhook_events WHERE processed_at IS NOT NULL", 1)
}

func TestIngestDuplicateEventIsAcknowledgedOnce(t *testing.T) {
	f := newWebhookFixture(t)
	bookingID := f.seedPaidFlow(t, bookingdomain.StatusPending, paymentdomain.PaymentStatusInitiated)

	object := fmt.Sprintf(
		`{"id":"cs_%s","payment_intent":"pi_%s","payment_status":"paid","amount_total":6000,"currency":"eur","metadata":{"booking_id":"%s"}}`,
		bookingID, bookingID, bookingID,
	)
	if err := f.ingest(t, "evt_dup", "checkout.session.completed", object); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.ingest(t, "evt_dup", "checkout.session.completed", object); err != nil {
		t.Fatalf("redelivery must be acknowledged, got %v", err)
	}

	assertWebhookCount(t, f.db, "SELECT COUNT(1) FROM webhook_events", 1)
}

func TestIngestUnknownEventTypeIsAcknowledgedWithoutRecording(t *testing.T) {
	f := newWebhookFixture(t)

	if err := f.ingest(t, "evt_other", "customer.created", `{"id":"cus_1"}`); err != nil {
		t.Fatalf("unknown types must be acknowledged, got %v", err)
	}
	assertWebhookCount(t, f.db, "SELECT COUNT(1) FROM webhook_events", 0)
}

func TestIngestDisputeCreatedLocksBooking(t *testing.T) {
	f := newWebhookFixture(t)
	bookingID := f.seedPaidFlow(t, bookingdomain.StatusPaid, paymentdomain.PaymentStatusSucceeded)

	object := fmt.Sprintf(`{"id":"dp_1","payment_intent":"pi_%s","status":"needs_response"}`, bookingID)
	if err := f.ingest(t, "evt_dispute_1", "charge.dispute.created", object); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var status string
	if err := f.db.Raw("SELECT status FROM bookings WHERE id = ?", bookingID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(bookingdomain.StatusDisputed) {
		t.Fatalf("expected DISPUTED, got %s", status)
	}
	assertWebhookCount(t, f.db, "SELECT COUNT(1) FROM dispute_reports WHERE status = 'OPEN'", 1)
}

func TestIngestRefundUpdatedFailureMarksRefundFailed(t *testing.T) {
	f := newWebhookFixture(t)
	bookingID := f.seedPaidFlow(t, bookingdomain.StatusCancelled, paymentdomain.PaymentStatusSucceeded)

	object := fmt.Sprintf(`{"id":"re_1","payment_intent":"pi_%s","status":"failed"}`, bookingID)
	if err := f.ingest(t, "evt_refund_1", "refund.updated", object); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var status string
	if err := f.db.Raw("SELECT status FROM bookings WHERE id = ?", bookingID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(bookingdomain.StatusRefundFailed) {
		t.Fatalf("expected REFUND_FAILED, got %s", status)
	}
}

func setupWebhookTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_wh_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE users (
			id BIGINT PRIMARY KEY,
			display_name TEXT NOT NULL,
			email TEXT NOT NULL,
			role TEXT NOT NULL,
			is_banned BOOLEAN NOT NULL DEFAULT FALSE,
			stripe_account_id TEXT NOT NULL DEFAULT '',
			stripe_charges_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			stripe_payouts_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			stripe_details_submitted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE experiences (
			id BIGINT PRIMARY KEY,
			host_id BIGINT NOT NULL,
			title TEXT NOT NULL,
			activity_type TEXT NOT NULL,
			status TEXT NOT NULL,
			price_amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			max_participants INTEGER NOT NULL,
			remaining_spots INTEGER NOT NULL,
			sold_out BOOLEAN NOT NULL DEFAULT FALSE,
			starts_at DATETIME,
			ends_at DATETIME,
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			host_reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE bookings (
			id BIGINT PRIMARY KEY,
			experience_id BIGINT NOT NULL,
			explorer_id BIGINT NOT NULL,
			host_id BIGINT NOT NULL,
			quantity INTEGER NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			is_deposit BOOLEAN NOT NULL DEFAULT FALSE,
			deposit_amount BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
			refund_success_email_sent BOOLEAN NOT NULL DEFAULT FALSE,
			refund_attempts INTEGER NOT NULL DEFAULT 0,
			last_refund_attempt_at DATETIME,
			paid_at DATETIME,
			completed_at DATETIME,
			payout_eligible_at DATETIME,
			chat_archived_at DATETIME,
			disputed_at DATETIME,
			dispute_resolved_at DATETIME,
			cancelled_at DATETIME,
			refunded_at DATETIME,
			no_show_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE payments (
			id BIGINT PRIMARY KEY,
			booking_id BIGINT NOT NULL,
			host_id BIGINT NOT NULL,
			explorer_id BIGINT NOT NULL,
			stripe_session_id TEXT NOT NULL DEFAULT '',
			stripe_payment_intent_id TEXT NOT NULL DEFAULT '',
			stripe_charge_id TEXT NOT NULL DEFAULT '',
			stripe_refund_id TEXT NOT NULL DEFAULT '',
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			is_deposit BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_payments_booking_id ON payments (booking_id)`,
		`CREATE TABLE webhook_events (
			id BIGINT PRIMARY KEY,
			event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			received_at DATETIME NOT NULL,
			processed_at DATETIME
		)`,
		`CREATE UNIQUE INDEX ux_webhook_events_event_id ON webhook_events (event_id)`,
		`CREATE TABLE dispute_reports (
			id BIGINT PRIMARY KEY,
			booking_id BIGINT NOT NULL,
			experience_id BIGINT NOT NULL,
			host_id BIGINT NOT NULL,
			reporter_id BIGINT NOT NULL,
			reason TEXT NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			action_taken TEXT NOT NULL DEFAULT '',
			handled_at DATETIME,
			created_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

func assertWebhookCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()
	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d rows for %q, got %d", expected, query, count)
	}
}
