package webhook

import (
	"context"

	"github.com/smallbiznis/cabinet/internal/webhook/repository"
	"github.com/smallbiznis/cabinet/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewGateway),
	fx.Provide(service.NewPruner),
	fx.Invoke(registerPruner),
)

func registerPruner(lc fx.Lifecycle, pruner *service.Pruner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return pruner.Start()
		},
		OnStop: func(ctx context.Context) error {
			return pruner.Stop(ctx)
		},
	})
}
