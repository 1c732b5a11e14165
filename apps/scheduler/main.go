package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/collecta/internal/action"
	"github.com/smallbiznis/collecta/internal/clock"
	"github.com/smallbiznis/collecta/internal/config"
	"github.com/smallbiznis/collecta/internal/consultant"
	"github.com/smallbiznis/collecta/internal/dispatch"
	"github.com/smallbiznis/collecta/internal/ledger"
	"github.com/smallbiznis/collecta/internal/logger"
	"github.com/smallbiznis/collecta/internal/migration"
	"github.com/smallbiznis/collecta/internal/observability"
	"github.com/smallbiznis/collecta/internal/providers/email"
	"github.com/smallbiznis/collecta/internal/reclamation"
	"github.com/smallbiznis/collecta/internal/reconcile"
	"github.com/smallbiznis/collecta/internal/scheduler"
	"github.com/smallbiznis/collecta/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services required by the scheduler
		scheduler.Module,
		action.Module,
		consultant.Module,
		ledger.Module,
		reconcile.Module,
		dispatch.Module,
		email.Module,
		reclamation.Module,

		// No server module!
		fx.Invoke(observability.RegisterInstrumentation),
		fx.Invoke(scheduler.Run),
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
