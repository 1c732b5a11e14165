package consultant

import (
	"github.com/smallbiznis/collecta/internal/consultant/repository"
	"github.com/smallbiznis/collecta/internal/consultant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("consultant.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
