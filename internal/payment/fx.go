package payment

import (
	"github.com/roamlabs/fieldtrip/internal/config"
	paymentdomain "github.com/roamlabs/fieldtrip/internal/payment/domain"
	"github.com/roamlabs/fieldtrip/internal/payment/gateway/stripe"
	"github.com/roamlabs/fieldtrip/internal/payment/repository"
	"github.com/roamlabs/fieldtrip/internal/payment/service"
	"github.com/roamlabs/fieldtrip/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		repository.Provide,
		func(cfg config.Config) paymentdomain.Gateway { return stripe.NewClient(cfg) },
		service.NewService,
		webhook.NewIngestor,
	),
)
