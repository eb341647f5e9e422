package dispute

import (
	"github.com/roamlabs/fieldtrip/internal/dispute/repository"
	"github.com/roamlabs/fieldtrip/internal/dispute/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dispute",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
