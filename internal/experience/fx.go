package experience

import (
	"github.com/roamlabs/fieldtrip/internal/experience/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("experience",
	fx.Provide(repository.Provide),
)
