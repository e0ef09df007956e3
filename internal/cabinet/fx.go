package cabinet

import (
	"github.com/smallbiznis/cabinet/internal/cabinet/repository"
	"github.com/smallbiznis/cabinet/internal/cabinet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cabinet.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
