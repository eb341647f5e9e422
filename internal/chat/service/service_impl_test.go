package service_test

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
	chatdomain "github.com/roamlabs/fieldtrip/internal/chat/domain"
	chatrepo "github.com/roamlabs/fieldtrip/internal/chat/repository"
	chatservice "github.com/roamlabs/fieldtrip/internal/chat/service"
	"github.com/roamlabs/fieldtrip/internal/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type chatFixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  *chatservice.Service

	explorerID snowflake.ID
	hostID     snowflake.ID
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_chat_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
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
		`CREATE TABLE messages (
			id BIGINT PRIMARY KEY,
			booking_id BIGINT NOT NULL,
			sender_id BIGINT NOT NULL,
			body TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	node, err := snowflake.NewNode(12)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc := chatservice.NewService(chatservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)),
		Messages: chatrepo.Provide(),
		Bookings: bookingrepo.Provide(),
	})

	return &chatFixture{
		db:         db,
		node:       node,
		svc:        svc,
		explorerID: node.Generate(),
		hostID:     node.Generate(),
	}
}

func (f *chatFixture) seedBooking(t *testing.T, status bookingdomain.Status, archivedAt *time.Time) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	err := f.db.Exec(
		`INSERT INTO bookings (id, experience_id, explorer_id, host_id, quantity, amount, currency, status, chat_archived_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, 2000, 'EUR', ?, ?, ?, ?)`,
		id, f.node.Generate(), f.explorerID, f.hostID, status, archivedAt, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return id
}

func TestSendMasksContactInfo(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	bookingID := f.seedBooking(t, bookingdomain.StatusPaid, nil)

	msg, err := f.svc.Send(ctx, bookingID, f.explorerID, "  reach me at jane@example.com before we meet ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Body != "reach me at [contact hidden] before we meet" {
		t.Fatalf("expected masked body, got %q", msg.Body)
	}

	messages, err := f.svc.List(ctx, bookingID, f.hostID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
}

func TestChatGate(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	paidID := f.seedBooking(t, bookingdomain.StatusPaid, nil)
	pendingID := f.seedBooking(t, bookingdomain.StatusPending, nil)
	archivedAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	archivedID := f.seedBooking(t, bookingdomain.StatusCompleted, &archivedAt)
	disputedID := f.seedBooking(t, bookingdomain.StatusDisputed, nil)

	stranger := f.node.Generate()
	if _, err := f.svc.Send(ctx, paidID, stranger, "hello"); !errors.Is(err, chatdomain.ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := f.svc.Send(ctx, pendingID, f.explorerID, "hello"); !errors.Is(err, chatdomain.ErrChatClosed) {
		t.Fatalf("expected ErrChatClosed before payment, got %v", err)
	}
	if _, err := f.svc.List(ctx, archivedID, f.explorerID); !errors.Is(err, chatdomain.ErrChatArchived) {
		t.Fatalf("expected ErrChatArchived, got %v", err)
	}

	// Disputed bookings stay open for evidence.
	if _, err := f.svc.Send(ctx, disputedID, f.hostID, "the photos from that day"); err != nil {
		t.Fatalf("disputed chat should accept messages, got %v", err)
	}
}
