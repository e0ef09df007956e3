package plan

import (
	"context"
	"time"

	"github.com/smallbiznis/cabinet/internal/config"
	plandomain "github.com/smallbiznis/cabinet/internal/plan/domain"
	"github.com/smallbiznis/cabinet/internal/plan/repository"
	"github.com/smallbiznis/cabinet/internal/plan/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

// SyncOnStart seeds the catalog at boot and re-syncs on every accepted reload.
var SyncOnStart = fx.Invoke(func(lc fx.Lifecycle, svc plandomain.Service, holder *config.PlanCatalogHolder, log *zap.Logger) {
	log = log.Named("plan.sync")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if _, err := svc.Sync(ctx, holder.Get()); err != nil {
				return err
			}
			holder.OnChange(func(catalog config.PlanCatalog) {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if _, err := svc.Sync(ctx, catalog); err != nil {
					log.Error("plan catalog resync failed", zap.Error(err))
				}
			})
			return nil
		},
	})
})
