package action

import (
	"github.com/smallbiznis/collecta/internal/action/repository"
	"github.com/smallbiznis/collecta/internal/action/service"
	"go.uber.org/fx"
)

var Module = fx.Module("action.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
