package email

import (
	"github.com/roamlabs/fieldtrip/internal/config"
	"go.uber.org/fx"
)

func NewProvider(cfg config.Config) Provider {
	if cfg.SMTPHost == "" {
		return &NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}

var Module = fx.Module("email",
	fx.Provide(NewProvider),
)
