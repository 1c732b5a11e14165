package ledger

import (
	"github.com/smallbiznis/collecta/internal/ledger/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.reader",
	fx.Provide(repository.Provide),
)
