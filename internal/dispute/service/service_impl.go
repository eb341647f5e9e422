package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	"github.com/roamlabs/fieldtrip/internal/dispute/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Reports  domain.Repository
	Bookings bookingdomain.Service
}

// Service reads dispute reports and funnels their resolution through the
// booking state machine, which closes the report as part of the move.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	reports  domain.Repository
	bookings bookingdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("dispute.service"),
		reports:  p.Reports,
		bookings: p.Bookings,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Report, error) {
	return s.reports.Find(ctx, s.db, id)
}

func (s *Service) ListOpenByHost(ctx context.Context, hostID snowflake.ID) ([]domain.Report, error) {
	return s.reports.ListOpenByHost(ctx, s.db, hostID)
}

// Resolve upholds the explorer's report: the host loses the dispute and
// the explorer is refunded.
func (s *Service) Resolve(ctx context.Context, reportID snowflake.ID) error {
	report, err := s.reports.Find(ctx, s.db, reportID)
	if err != nil {
		return err
	}
	return s.bookings.ResolveDispute(ctx, report.BookingID, false)
}

// Ignore dismisses the report: the host wins and the payout track is
// restored.
func (s *Service) Ignore(ctx context.Context, reportID snowflake.ID) error {
	report, err := s.reports.Find(ctx, s.db, reportID)
	if err != nil {
		return err
	}
	return s.bookings.ResolveDispute(ctx, report.BookingID, true)
}
