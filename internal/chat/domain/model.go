package domain

import (
	"errors"
	"regexp"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
)

type Message struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	BookingID snowflake.ID `json:"booking_id" gorm:"not null;index"`
	SenderID  snowflake.ID `json:"sender_id" gorm:"not null;index"`
	Body      string       `json:"body" gorm:"type:text;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Message) TableName() string { return "messages" }

var (
	ErrNotParticipant = errors.New("chat_not_participant")
	ErrChatClosed     = errors.New("chat_closed")
	ErrChatArchived   = errors.New("chat_archived")
)

// Open reports whether the booking's chat thread accepts reads and
// writes. The thread only exists once money moved, survives disputes so
// both sides can present evidence, and dies with a refund or cancel.
func Open(b *bookingdomain.Booking) bool {
	if b == nil || b.ChatArchivedAt != nil {
		return false
	}
	return b.Status.IsPaid()
}

// ArchiveAt resolves when a booking's chat should be archived. Disputed
// bookings are never scheduled: resolution restarts the countdown from
// the resolution time.
func ArchiveAt(b *bookingdomain.Booking, effectiveEnd time.Time, afterEnd, afterDisputeResolve time.Duration) (time.Time, bool) {
	if b == nil || b.ChatArchivedAt != nil {
		return time.Time{}, false
	}
	if b.Status.DisputeLocked() {
		return time.Time{}, false
	}
	if b.DisputeResolvedAt != nil {
		return b.DisputeResolvedAt.Add(afterDisputeResolve), true
	}
	return effectiveEnd.Add(afterEnd), true
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\s().\-]{6,}[0-9]`)
)

// MaskContactInfo redacts emails and phone numbers so the two sides
// cannot take the transaction off-platform before completion.
func MaskContactInfo(body string) string {
	masked := emailPattern.ReplaceAllString(body, "[contact hidden]")
	return phonePattern.ReplaceAllString(masked, "[contact hidden]")
}
