package chat

import (
	"github.com/roamlabs/fieldtrip/internal/chat/repository"
	"github.com/roamlabs/fieldtrip/internal/chat/service"
	"go.uber.org/fx"
)

var Module = fx.Module("chat",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
