package admin

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	"github.com/roamlabs/fieldtrip/internal/clock"
	"github.com/roamlabs/fieldtrip/internal/config"
	disputeservice "github.com/roamlabs/fieldtrip/internal/dispute/service"
	experiencedomain "github.com/roamlabs/fieldtrip/internal/experience/domain"
	userdomain "github.com/roamlabs/fieldtrip/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ActionBanHost           = "BAN_HOST"
	ActionBanExplorer       = "BAN_EXPLORER"
	ActionDisableExperience = "DISABLE_EXPERIENCE"
	ActionResolveDispute    = "RESOLVE"
	ActionIgnoreDispute     = "IGNORE"
	ActionRefundExplorer    = "REFUND_EXPLORER"

	confirmBan     = "BAN"
	confirmDisable = "DISABLE"
)

var (
	ErrUnknownAction   = errors.New("admin_unknown_action")
	ErrConfirmMismatch = errors.New("admin_confirm_mismatch")
)

type ExecuteRequest struct {
	Token       string
	ConfirmText string
}

type Result struct {
	Action    string `json:"action"`
	Processed int    `json:"processed"`
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Cfg         config.Config
	Users       userdomain.Repository
	Experiences experiencedomain.Repository
	Bookings    bookingdomain.Service
	BookingRepo bookingdomain.Repository
	Disputes    *disputeservice.Service
}

// Service executes signed back-office actions. Destructive actions
// additionally require the operator to retype a confirmation word.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	cfg         config.Config
	users       userdomain.Repository
	experiences experiencedomain.Repository
	bookings    bookingdomain.Service
	bookingRepo bookingdomain.Repository
	disputes    *disputeservice.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("admin.actions"),
		clock:       p.Clock,
		cfg:         p.Cfg,
		users:       p.Users,
		experiences: p.Experiences,
		bookings:    p.Bookings,
		bookingRepo: p.BookingRepo,
		disputes:    p.Disputes,
	}
}

func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*Result, error) {
	token, err := VerifyToken(s.cfg.AdminActionSecret, req.Token, s.clock.Now())
	if err != nil {
		return nil, err
	}

	ids, err := parseTargets(token.TargetIDs)
	if err != nil {
		return nil, err
	}

	var processed int
	var errs []error
	for _, id := range ids {
		if err := s.apply(ctx, token.Action, req.ConfirmText, id); err != nil {
			if errors.Is(err, ErrConfirmMismatch) || errors.Is(err, ErrUnknownAction) {
				return nil, err
			}
			s.log.Error("admin action failed",
				zap.String("action", token.Action),
				zap.String("target_id", id.String()),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		processed++
	}

	s.log.Info("admin action executed",
		zap.String("action", token.Action),
		zap.Int("processed", processed),
		zap.Int("failed", len(errs)))
	return &Result{Action: token.Action, Processed: processed}, errors.Join(errs...)
}

func (s *Service) apply(ctx context.Context, action, confirmText string, id snowflake.ID) error {
	switch action {
	case ActionBanHost, ActionBanExplorer:
		if confirmText != confirmBan {
			return ErrConfirmMismatch
		}
		_, err := s.users.Ban(ctx, s.db, id, s.clock.Now())
		return err

	case ActionDisableExperience:
		if confirmText != confirmDisable {
			return ErrConfirmMismatch
		}
		return s.disableExperience(ctx, id)

	case ActionResolveDispute:
		return s.disputes.Resolve(ctx, id)

	case ActionIgnoreDispute:
		return s.disputes.Ignore(ctx, id)

	case ActionRefundExplorer:
		return s.bookings.Refund(ctx, id, "admin_refund")

	default:
		return ErrUnknownAction
	}
}

// disableExperience takes the listing off the marketplace and unwinds
// every active paid booking through the normal cancel-and-refund path.
func (s *Service) disableExperience(ctx context.Context, experienceID snowflake.ID) error {
	if _, err := s.experiences.Disable(ctx, s.db, experienceID, s.clock.Now()); err != nil {
		return err
	}

	active, err := s.bookingRepo.ListPaidByExperience(ctx, s.db, experienceID)
	if err != nil {
		return err
	}

	var errs []error
	for _, b := range active {
		switch b.Status {
		case bookingdomain.StatusPaid, bookingdomain.StatusDepositPaid, bookingdomain.StatusPending:
			if err := s.bookings.Cancel(ctx, b.ID, b.HostID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func parseTargets(raw []string) ([]snowflake.ID, error) {
	ids := make([]snowflake.ID, 0, len(raw))
	for _, r := range raw {
		id, err := snowflake.ParseString(r)
		if err != nil {
			return nil, ErrInvalidToken
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var Module = fx.Module("admin",
	fx.Provide(NewService),
)
