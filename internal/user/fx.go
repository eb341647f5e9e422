package user

import (
	"github.com/roamlabs/fieldtrip/internal/user/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("user",
	fx.Provide(repository.Provide),
)
