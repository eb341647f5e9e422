package booking

import (
	"github.com/roamlabs/fieldtrip/internal/booking/repository"
	"github.com/roamlabs/fieldtrip/internal/booking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("booking",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
