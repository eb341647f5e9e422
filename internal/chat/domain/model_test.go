package domain_test

import (
	"testing"
	"time"

	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	"github.com/roamlabs/fieldtrip/internal/chat/domain"
	"github.com/stretchr/testify/assert"
)

func TestOpen(t *testing.T) {
	archived := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	assert.False(t, domain.Open(nil))
	assert.False(t, domain.Open(&bookingdomain.Booking{Status: bookingdomain.StatusPending}))
	assert.False(t, domain.Open(&bookingdomain.Booking{Status: bookingdomain.StatusCancelled}))
	assert.False(t, domain.Open(&bookingdomain.Booking{Status: bookingdomain.StatusRefunded}))
	assert.True(t, domain.Open(&bookingdomain.Booking{Status: bookingdomain.StatusPaid}))
	assert.True(t, domain.Open(&bookingdomain.Booking{Status: bookingdomain.StatusCompleted}))

	// Disputes keep the thread open so both sides can present evidence.
	assert.True(t, domain.Open(&bookingdomain.Booking{Status: bookingdomain.StatusDisputed}))

	assert.False(t, domain.Open(&bookingdomain.Booking{Status: bookingdomain.StatusPaid, ChatArchivedAt: &archived}))
}

func TestArchiveAt(t *testing.T) {
	end := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	resolved := end.Add(30 * time.Hour)
	afterEnd := 48 * time.Hour
	afterResolve := 72 * time.Hour

	t.Run("counts from the effective end", func(t *testing.T) {
		b := &bookingdomain.Booking{Status: bookingdomain.StatusCompleted}
		at, ok := domain.ArchiveAt(b, end, afterEnd, afterResolve)
		assert.True(t, ok)
		assert.Equal(t, end.Add(afterEnd), at)
	})

	t.Run("resolution restarts the countdown", func(t *testing.T) {
		b := &bookingdomain.Booking{Status: bookingdomain.StatusDisputeWon, DisputeResolvedAt: &resolved}
		at, ok := domain.ArchiveAt(b, end, afterEnd, afterResolve)
		assert.True(t, ok)
		assert.Equal(t, resolved.Add(afterResolve), at)
	})

	t.Run("open dispute is never scheduled", func(t *testing.T) {
		b := &bookingdomain.Booking{Status: bookingdomain.StatusDisputed}
		_, ok := domain.ArchiveAt(b, end, afterEnd, afterResolve)
		assert.False(t, ok)
	})

	t.Run("already archived", func(t *testing.T) {
		b := &bookingdomain.Booking{Status: bookingdomain.StatusCompleted, ChatArchivedAt: &end}
		_, ok := domain.ArchiveAt(b, end, afterEnd, afterResolve)
		assert.False(t, ok)
	})
}

func TestMaskContactInfo(t *testing.T) {
	cases := []struct {
		name string
		in   string
		out  string
	}{
		{"email", "write me at jane.doe+trips@example.com please", "write me at [contact hidden] please"},
		{"phone international", "call +44 20 7946 0958 tonight", "call [contact hidden] tonight"},
		{"phone with dashes", "my number is 555-867-5309", "my number is [contact hidden]"},
		{"both", "mail a@b.io or ring 0176 1234567", "mail [contact hidden] or ring [contact hidden]"},
		{"clean text untouched", "meet at the north gate at 9", "meet at the north gate at 9"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.out, domain.MaskContactInfo(tc.in))
		})
	}
}
