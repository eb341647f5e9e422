package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	"github.com/roamlabs/fieldtrip/internal/chat/domain"
	"github.com/roamlabs/fieldtrip/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Messages domain.Repository
	Bookings bookingdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	messages domain.Repository
	bookings bookingdomain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("chat.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		messages: p.Messages,
		bookings: p.Bookings,
	}
}

func (s *Service) List(ctx context.Context, bookingID, requesterID snowflake.ID) ([]domain.Message, error) {
	if _, err := s.gate(ctx, bookingID, requesterID); err != nil {
		return nil, err
	}
	return s.messages.ListByBooking(ctx, s.db, bookingID)
}

func (s *Service) Send(ctx context.Context, bookingID, senderID snowflake.ID, body string) (*domain.Message, error) {
	if _, err := s.gate(ctx, bookingID, senderID); err != nil {
		return nil, err
	}

	message := &domain.Message{
		ID:        s.genID.Generate(),
		BookingID: bookingID,
		SenderID:  senderID,
		Body:      domain.MaskContactInfo(strings.TrimSpace(body)),
		CreatedAt: s.clock.Now(),
	}
	if err := s.messages.Insert(ctx, s.db, message); err != nil {
		return nil, err
	}
	return message, nil
}

func (s *Service) gate(ctx context.Context, bookingID, userID snowflake.ID) (*bookingdomain.Booking, error) {
	booking, err := s.bookings.Find(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if userID != booking.ExplorerID && userID != booking.HostID {
		return nil, domain.ErrNotParticipant
	}
	if booking.ChatArchivedAt != nil {
		return nil, domain.ErrChatArchived
	}
	if !domain.Open(booking) {
		return nil, domain.ErrChatClosed
	}
	return booking, nil
}
