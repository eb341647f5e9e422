package scheduler_test

import (
	"context"
	"database/sql"
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
	paymentrepo "github.com/roamlabs/fieldtrip/internal/payment/repository"
	paymentservice "github.com/roamlabs/fieldtrip/internal/payment/service"
	"github.com/roamlabs/fieldtrip/internal/scheduler"
	userrepo "github.com/roamlabs/fieldtrip/internal/user/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	requests []notificationdomain.NotifyRequest
}

func (n *recordingNotifier) Notify(ctx context.Context, req notificationdomain.NotifyRequest) {
	n.requests = append(n.requests, req)
}

// schedGateway serves canned checkout sessions so the reconciliation
// sweep can be driven without a provider.
type schedGateway struct {
	sessions    map[string]*paymentdomain.CheckoutSession
	refundCalls int
}

func (g *schedGateway) CreateCheckoutSession(ctx context.Context, req paymentdomain.CreateCheckoutSessionRequest) (*paymentdomain.CheckoutSession, error) {
	return &paymentdomain.CheckoutSession{
		ID:  "cs_" + req.BookingID.String(),
		URL: "https://checkout.test/" + req.BookingID.String(),
	}, nil
}

func (g *schedGateway) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*paymentdomain.CheckoutSession, error) {
	if session, ok := g.sessions[sessionID]; ok {
		return session, nil
	}
	return nil, paymentdomain.ErrSessionNotFound
}

func (g *schedGateway) CreateRefund(ctx context.Context, req paymentdomain.CreateRefundRequest) (*paymentdomain.Refund, error) {
	g.refundCalls++
	return &paymentdomain.Refund{ID: fmt.Sprintf("re_%d", g.refundCalls), Status: "succeeded"}, nil
}

type schedFixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
	gateway  *schedGateway
	notifier *recordingNotifier
	sched    *scheduler.Scheduler
}

func newSchedFixture(t *testing.T) *schedFixture {
	t.Helper()

	db := setupSchedulerTestDB(t)
	node, err := snowflake.NewNode(11)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	clk := clock.NewFakeClock(baseTime)
	policy := config.NewStaticPolicyHolder(config.DefaultPolicyConfig())
	gateway := &schedGateway{sessions: map[string]*paymentdomain.CheckoutSession{}}
	notifier := &recordingNotifier{}

	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk,
		Cfg: config.Config{}, Policy: policy,
		Repo: paymentrepo.Provide(), Gateway: gateway,
	})
	bookingSvc := bookingservice.NewService(bookingservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Policy: policy,
		Bookings: bookingrepo.Provide(), Experiences: experiencerepo.Provide(),
		Users: userrepo.Provide(), Payments: paymentrepo.Provide(),
		Disputes: disputerepo.Provide(), PaymentSvc: paymentSvc, Notifier: notifier,
	})

	sched, err := scheduler.New(scheduler.Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       clk,
		Policy:      policy,
		BookingSvc:  bookingSvc,
		BookingRepo: bookingrepo.Provide(),
		Experiences: experiencerepo.Provide(),
		Payments:    paymentrepo.Provide(),
		Gateway:     gateway,
		Notifier:    notifier,
		Config:      scheduler.Config{RunInterval: time.Minute, BatchSize: 50},
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	return &schedFixture{db: db, node: node, clk: clk, gateway: gateway, notifier: notifier, sched: sched}
}

type tripSeed struct {
	status              bookingdomain.Status
	startsAt            *time.Time
	endsAt              *time.Time
	refundAttempts      int
	lastRefundAttemptAt *time.Time
}

type trip struct {
	bookingID  snowflake.ID
	expID      snowflake.ID
	hostID     snowflake.ID
	explorerID snowflake.ID
}

func (f *schedFixture) seedTrip(t *testing.T, seed tripSeed) trip {
	t.Helper()

	tr := trip{
		bookingID:  f.node.Generate(),
		expID:      f.node.Generate(),
		hostID:     f.node.Generate(),
		explorerID: f.node.Generate(),
	}

	for _, stmt := range []struct {
		query string
		args  []any
	}{
		{
			`INSERT INTO users (id, display_name, email, role, is_banned, stripe_account_id, created_at, updated_at)
			 VALUES (?, 'Host', ?, 'host', FALSE, 'acct_h', ?, ?)`,
			[]any{tr.hostID, fmt.Sprintf("h%s@example.com", tr.hostID), baseTime, baseTime},
		},
		{
			`INSERT INTO users (id, display_name, email, role, is_banned, stripe_account_id, created_at, updated_at)
			 VALUES (?, 'Explorer', ?, 'explorer', FALSE, '', ?, ?)`,
			[]any{tr.explorerID, fmt.Sprintf("e%s@example.com", tr.explorerID), baseTime, baseTime},
		},
		{
			`INSERT INTO experiences (id, host_id, title, activity_type, status, price_amount, currency, max_participants, remaining_spots, sold_out, starts_at, ends_at, duration_minutes, host_reminder_sent, created_at, updated_at)
			 VALUES (?, ?, 'City walk', 'GROUP', 'PUBLISHED', 4000, 'EUR', 6, 5, FALSE, ?, ?, 0, FALSE, ?, ?)`,
			[]any{tr.expID, tr.hostID, seed.startsAt, seed.endsAt, baseTime, baseTime},
		},
		{
			`INSERT INTO bookings (id, experience_id, explorer_id, host_id, quantity, amount, currency, is_deposit, deposit_amount, status, reminder_sent, refund_success_email_sent, refund_attempts, last_refund_attempt_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 1, 4000, 'EUR', FALSE, 0, ?, FALSE, FALSE, ?, ?, ?, ?)`,
			[]any{tr.bookingID, tr.expID, tr.explorerID, tr.hostID, seed.status, seed.refundAttempts, seed.lastRefundAttemptAt, baseTime, baseTime},
		},
	} {
		if err := f.db.Exec(stmt.query, stmt.args...).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	return tr
}

func (f *schedFixture) seedPayment(t *testing.T, tr trip, status string) {
	t.Helper()
	err := f.db.Exec(
		`INSERT INTO payments (id, booking_id, host_id, explorer_id, stripe_session_id, stripe_payment_intent_id, stripe_charge_id, stripe_refund_id, amount, currency, is_deposit, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, '', '', 4000, 'EUR', FALSE, ?, ?, ?)`,
		f.node.Generate(), tr.bookingID, tr.hostID, tr.explorerID,
		"cs_"+tr.bookingID.String(), "pi_"+tr.bookingID.String(), status, baseTime, baseTime,
	).Error
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
}

func (f *schedFixture) bookingStatus(t *testing.T, id snowflake.ID) bookingdomain.Status {
	t.Helper()
	var status string
	if err := f.db.Raw("SELECT status FROM bookings WHERE id = ?", id).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	return bookingdomain.Status(status)
}

func (f *schedFixture) paymentStatus(t *testing.T, bookingID snowflake.ID) string {
	t.Helper()
	var status string
	if err := f.db.Raw("SELECT status FROM payments WHERE booking_id = ?", bookingID).Scan(&status).Error; err != nil {
		t.Fatalf("scan payment status: %v", err)
	}
	return status
}

func (f *schedFixture) nullableTime(t *testing.T, query string, id snowflake.ID) sql.NullTime {
	t.Helper()
	var value sql.NullTime
	if err := f.db.Raw(query, id).Scan(&value).Error; err != nil {
		t.Fatalf("scan %q: %v", query, err)
	}
	return value
}

func TestOpenAttendanceJobMovesStartedBookings(t *testing.T) {
	ctx := context.Background()
	f := newSchedFixture(t)

	started := baseTime.Add(-30 * time.Minute)
	upcoming := baseTime.Add(2 * time.Hour)
	due := f.seedTrip(t, tripSeed{status: bookingdomain.StatusPaid, startsAt: &started})
	notYet := f.seedTrip(t, tripSeed{status: bookingdomain.StatusPaid, startsAt: &upcoming})

	if err := f.sched.OpenAttendanceJob(ctx); err != nil {
		t.Fatalf("open attendance job: %v", err)
	}

	if got := f.bookingStatus(t, due.bookingID); got != bookingdomain.StatusPendingAttendance {
		t.Fatalf("expected PENDING_ATTENDANCE, got %s", got)
	}
	if got := f.bookingStatus(t, notYet.bookingID); got != bookingdomain.StatusPaid {
		t.Fatalf("upcoming booking must stay PAID, got %s", got)
	}
}

func TestAutoCompleteJobRespectsGracePeriod(t *testing.T) {
	ctx := context.Background()
	f := newSchedFixture(t)

	longOverStart := baseTime.Add(-72 * time.Hour)
	longOverEnd := baseTime.Add(-50 * time.Hour)
	recentEnd := baseTime.Add(-10 * time.Hour)

	stale := f.seedTrip(t, tripSeed{status: bookingdomain.StatusPendingAttendance, startsAt: &longOverStart, endsAt: &longOverEnd})
	fresh := f.seedTrip(t, tripSeed{status: bookingdomain.StatusPendingAttendance, startsAt: &longOverStart, endsAt: &recentEnd})

	if err := f.sched.AutoCompleteJob(ctx); err != nil {
		t.Fatalf("auto complete job: %v", err)
	}

	if got := f.bookingStatus(t, stale.bookingID); got != bookingdomain.StatusAutoCompleted {
		t.Fatalf("expected AUTO_COMPLETED, got %s", got)
	}
	payoutAt := f.nullableTime(t, "SELECT payout_eligible_at FROM bookings WHERE id = ?", stale.bookingID)
	if !payoutAt.Valid {
		t.Fatalf("expected payout holdback to be scheduled")
	}

	if got := f.bookingStatus(t, fresh.bookingID); got != bookingdomain.StatusPendingAttendance {
		t.Fatalf("booking inside the grace period must stay PENDING_ATTENDANCE, got %s", got)
	}
}

func TestReconcilePaymentsJob(t *testing.T) {
	ctx := context.Background()
	f := newSchedFixture(t)

	captured := f.seedTrip(t, tripSeed{status: bookingdomain.StatusPending})
	f.seedPayment(t, captured, paymentdomain.PaymentStatusInitiated)
	f.gateway.sessions["cs_"+captured.bookingID.String()] = &paymentdomain.CheckoutSession{
		ID:              "cs_" + captured.bookingID.String(),
		PaymentIntentID: "pi_" + captured.bookingID.String(),
		PaymentStatus:   "paid",
		AmountTotal:     4000,
		Currency:        "eur",
	}

	abandoned := f.seedTrip(t, tripSeed{status: bookingdomain.StatusPending})
	f.seedPayment(t, abandoned, paymentdomain.PaymentStatusInitiated)
	f.gateway.sessions["cs_"+abandoned.bookingID.String()] = &paymentdomain.CheckoutSession{
		ID:            "cs_" + abandoned.bookingID.String(),
		PaymentStatus: "unpaid",
	}

	lost := f.seedTrip(t, tripSeed{status: bookingdomain.StatusPending})
	f.seedPayment(t, lost, paymentdomain.PaymentStatusInitiated)

	if err := f.sched.ReconcilePaymentsJob(ctx); err != nil {
		t.Fatalf("reconcile payments job: %v", err)
	}

	if got := f.bookingStatus(t, captured.bookingID); got != bookingdomain.StatusPaid {
		t.Fatalf("captured session must mark the booking PAID, got %s", got)
	}
	if got := f.paymentStatus(t, captured.bookingID); got != paymentdomain.PaymentStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", got)
	}

	// Still awaiting the customer, nothing to do yet.
	if got := f.paymentStatus(t, abandoned.bookingID); got != paymentdomain.PaymentStatusInitiated {
		t.Fatalf("unpaid session must stay INITIATED, got %s", got)
	}

	if got := f.paymentStatus(t, lost.bookingID); got != paymentdomain.PaymentStatusFailed {
		t.Fatalf("unknown session must be marked FAILED, got %s", got)
	}
	if got := f.bookingStatus(t, lost.bookingID); got != bookingdomain.StatusPending {
		t.Fatalf("booking with a lost session stays PENDING, got %s", got)
	}
}

func TestRefundRetryJob(t *testing.T) {
	ctx := context.Background()
	f := newSchedFixture(t)

	lastAttempt := baseTime.Add(-7 * time.Hour)
	due := f.seedTrip(t, tripSeed{
		status:              bookingdomain.StatusRefundFailed,
		refundAttempts:      1,
		lastRefundAttemptAt: &lastAttempt,
	})
	f.seedPayment(t, due, paymentdomain.PaymentStatusSucceeded)

	exhaustedAttempt := baseTime.Add(-10 * time.Hour)
	exhausted := f.seedTrip(t, tripSeed{
		status:              bookingdomain.StatusRefundFailed,
		refundAttempts:      5,
		lastRefundAttemptAt: &exhaustedAttempt,
	})
	f.seedPayment(t, exhausted, paymentdomain.PaymentStatusSucceeded)

	if err := f.sched.RefundRetryJob(ctx); err != nil {
		t.Fatalf("refund retry job: %v", err)
	}

	if got := f.bookingStatus(t, due.bookingID); got != bookingdomain.StatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", got)
	}
	if got := f.paymentStatus(t, due.bookingID); got != paymentdomain.PaymentStatusRefunded {
		t.Fatalf("expected payment REFUNDED, got %s", got)
	}
	if f.gateway.refundCalls != 1 {
		t.Fatalf("expected 1 refund call, got %d", f.gateway.refundCalls)
	}

	if got := f.bookingStatus(t, exhausted.bookingID); got != bookingdomain.StatusRefundFailed {
		t.Fatalf("exhausted booking must stay REFUND_FAILED, got %s", got)
	}
}

func TestChatArchiveJob(t *testing.T) {
	ctx := context.Background()
	f := newSchedFixture(t)

	start := baseTime.Add(-72 * time.Hour)
	oldEnd := baseTime.Add(-49 * time.Hour)
	recentEnd := baseTime.Add(-10 * time.Hour)

	overdue := f.seedTrip(t, tripSeed{status: bookingdomain.StatusCompleted, startsAt: &start, endsAt: &oldEnd})
	recent := f.seedTrip(t, tripSeed{status: bookingdomain.StatusCompleted, startsAt: &start, endsAt: &recentEnd})
	disputed := f.seedTrip(t, tripSeed{status: bookingdomain.StatusDisputed, startsAt: &start, endsAt: &oldEnd})

	if err := f.sched.ChatArchiveJob(ctx); err != nil {
		t.Fatalf("chat archive job: %v", err)
	}

	if at := f.nullableTime(t, "SELECT chat_archived_at FROM bookings WHERE id = ?", overdue.bookingID); !at.Valid {
		t.Fatalf("expected overdue chat to be archived")
	}
	if at := f.nullableTime(t, "SELECT chat_archived_at FROM bookings WHERE id = ?", recent.bookingID); at.Valid {
		t.Fatalf("chat inside the retention window must stay open")
	}
	if at := f.nullableTime(t, "SELECT chat_archived_at FROM bookings WHERE id = ?", disputed.bookingID); at.Valid {
		t.Fatalf("disputed chat must never be archived")
	}
}

func TestRemindersJobSendsOnce(t *testing.T) {
	ctx := context.Background()
	f := newSchedFixture(t)

	soon := baseTime.Add(2 * time.Hour)
	tr := f.seedTrip(t, tripSeed{status: bookingdomain.StatusPaid, startsAt: &soon})

	if err := f.sched.RemindersJob(ctx); err != nil {
		t.Fatalf("reminders job: %v", err)
	}

	var reminded, hostReminded bool
	if err := f.db.Raw("SELECT reminder_sent FROM bookings WHERE id = ?", tr.bookingID).Scan(&reminded).Error; err != nil {
		t.Fatalf("scan reminder_sent: %v", err)
	}
	if err := f.db.Raw("SELECT host_reminder_sent FROM experiences WHERE id = ?", tr.expID).Scan(&hostReminded).Error; err != nil {
		t.Fatalf("scan host_reminder_sent: %v", err)
	}
	if !reminded || !hostReminded {
		t.Fatalf("expected both reminder flags set, got explorer=%v host=%v", reminded, hostReminded)
	}

	if len(f.notifier.requests) != 2 {
		t.Fatalf("expected 2 reminders, got %d", len(f.notifier.requests))
	}
	recipients := map[snowflake.ID]bool{}
	for _, req := range f.notifier.requests {
		recipients[req.UserID] = true
	}
	if !recipients[tr.explorerID] || !recipients[tr.hostID] {
		t.Fatalf("expected reminders for both sides, got %v", recipients)
	}

	// The sent flags make a second tick a no-op.
	if err := f.sched.RemindersJob(ctx); err != nil {
		t.Fatalf("second reminders job: %v", err)
	}
	if len(f.notifier.requests) != 2 {
		t.Fatalf("reminders must go out once, got %d", len(f.notifier.requests))
	}
}

func setupSchedulerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_sched_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
