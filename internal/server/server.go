package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/roamlabs/fieldtrip/internal/admin"
	"github.com/roamlabs/fieldtrip/internal/booking"
	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	"github.com/roamlabs/fieldtrip/internal/chat"
	chatservice "github.com/roamlabs/fieldtrip/internal/chat/service"
	"github.com/roamlabs/fieldtrip/internal/config"
	"github.com/roamlabs/fieldtrip/internal/dispute"
	disputeservice "github.com/roamlabs/fieldtrip/internal/dispute/service"
	"github.com/roamlabs/fieldtrip/internal/experience"
	"github.com/roamlabs/fieldtrip/internal/notification"
	"github.com/roamlabs/fieldtrip/internal/payment"
	paymentwebhook "github.com/roamlabs/fieldtrip/internal/payment/webhook"
	"github.com/roamlabs/fieldtrip/internal/payout"
	"github.com/roamlabs/fieldtrip/internal/providers/email"
	"github.com/roamlabs/fieldtrip/internal/user"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	user.Module,
	experience.Module,
	email.Module,
	notification.Module,
	payment.Module,
	booking.Module,
	dispute.Module,
	chat.Module,
	payout.Module,
	admin.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	bookingSvc bookingdomain.Service
	chatSvc    *chatservice.Service
	disputeSvc *disputeservice.Service
	payoutCalc *payout.Calculator
	adminSvc   *admin.Service
	ingestor   *paymentwebhook.Ingestor
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	BookingSvc bookingdomain.Service
	ChatSvc    *chatservice.Service
	DisputeSvc *disputeservice.Service
	PayoutCalc *payout.Calculator
	AdminSvc   *admin.Service
	Ingestor   *paymentwebhook.Ingestor
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		bookingSvc: p.BookingSvc,
		chatSvc:    p.ChatSvc,
		disputeSvc: p.DisputeSvc,
		payoutCalc: p.PayoutCalc,
		adminSvc:   p.AdminSvc,
		ingestor:   p.Ingestor,
	}

	svc.registerBookingRoutes()
	svc.registerChatRoutes()
	svc.registerHostRoutes()
	svc.registerWebhookRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) registerBookingRoutes() {
	v1 := s.engine.Group("/v1")
	v1.POST("/bookings", s.CreateBooking)
	v1.GET("/bookings", s.ListBookings)
	v1.GET("/bookings/:id", s.GetBooking)
	v1.POST("/bookings/:id/cancel", s.CancelBooking)
	v1.POST("/bookings/:id/attendance/confirm", s.ConfirmAttendance)
	v1.POST("/bookings/:id/attendance/no-show", s.MarkNoShow)
	v1.POST("/bookings/:id/disputes", s.OpenDispute)
}

func (s *Server) registerChatRoutes() {
	v1 := s.engine.Group("/v1")
	v1.GET("/bookings/:id/messages", s.ListMessages)
	v1.POST("/bookings/:id/messages", s.SendMessage)
}

func (s *Server) registerHostRoutes() {
	v1 := s.engine.Group("/v1")
	v1.GET("/hosts/me/balance", s.HostBalance)
	v1.GET("/hosts/me/disputes", s.HostOpenDisputes)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/v1/webhooks/stripe", s.StripeWebhook)
}

func (s *Server) registerAdminRoutes() {
	s.engine.POST("/v1/admin/actions", s.ExecuteAdminAction)
}
