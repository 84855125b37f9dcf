package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/fortimind/subscriptions/internal/clock"
	"github.com/fortimind/subscriptions/internal/migration"
	"github.com/fortimind/subscriptions/internal/observability"
	"github.com/fortimind/subscriptions/internal/reconciler"
	"github.com/fortimind/subscriptions/internal/server"
	"github.com/fortimind/subscriptions/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		server.Module,

		// Functional domains
		reconciler.Module,
		migration.Module,
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
