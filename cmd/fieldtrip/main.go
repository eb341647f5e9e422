package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/roamlabs/fieldtrip/internal/clock"
	"github.com/roamlabs/fieldtrip/internal/config"
	"github.com/roamlabs/fieldtrip/internal/logger"
	"github.com/roamlabs/fieldtrip/internal/migration"
	"github.com/roamlabs/fieldtrip/internal/scheduler"
	"github.com/roamlabs/fieldtrip/internal/server"
	"github.com/roamlabs/fieldtrip/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
