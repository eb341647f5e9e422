package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/roamlabs/fieldtrip/internal/notification/domain"
	"github.com/roamlabs/fieldtrip/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Email email.Provider
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	email email.Provider
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("notification"),
		genID: p.GenID,
		email: p.Email,
	}
}

func (s *Service) Notify(ctx context.Context, req domain.NotifyRequest) {
	if req.UserID == 0 || req.Type == "" {
		return
	}

	var payload datatypes.JSON
	if len(req.Data) > 0 {
		raw, err := json.Marshal(req.Data)
		if err == nil {
			payload = datatypes.JSON(raw)
		}
	}

	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO notifications (id, user_id, type, title, message, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.genID.Generate(),
		req.UserID,
		req.Type,
		req.Title,
		req.Message,
		payload,
		now,
	).Error
	if err != nil {
		s.log.Warn("failed to record notification",
			zap.String("type", req.Type),
			zap.String("user_id", req.UserID.String()),
			zap.Error(err),
		)
	}

	if req.Email == "" || s.email == nil {
		return
	}
	if err := s.email.Send(ctx, []string{req.Email}, req.Title, req.Message); err != nil {
		s.log.Warn("failed to send notification email",
			zap.String("type", req.Type),
			zap.Error(err),
		)
	}
}
