package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/cabinet/internal/clock"
	"github.com/smallbiznis/cabinet/internal/config"
	obsmetrics "github.com/smallbiznis/cabinet/internal/observability/metrics"
	"github.com/smallbiznis/cabinet/internal/ratelimit"
	webhookdomain "github.com/smallbiznis/cabinet/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	pruneLockKey   = "cabinet:jobs:webhook-prune"
	pruneLockTTL   = 5 * time.Minute
	pruneBatchSize = 1000
)

type PrunerParams struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Cfg    config.Config
	Clock  clock.Clock
	Repo   webhookdomain.Repository
	Locker *ratelimit.Locker `optional:"true"`

	WebhookMetrics *obsmetrics.WebhookMetrics `optional:"true"`
}

// Pruner enforces delivery-log retention on a cron schedule. With Redis
// configured only one replica prunes per tick.
type Pruner struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      webhookdomain.Repository
	locker    *ratelimit.Locker
	metrics   *obsmetrics.WebhookMetrics
	retention time.Duration
	schedule  string
	cron      *cron.Cron
}

func NewPruner(p PrunerParams) *Pruner {
	schedule := p.Cfg.WebhookPruneSchedule
	if schedule == "" {
		schedule = "@hourly"
	}
	return &Pruner{
		db:        p.DB,
		log:       p.Log.Named("webhook.pruner"),
		clock:     p.Clock,
		repo:      p.Repo,
		locker:    p.Locker,
		metrics:   p.WebhookMetrics,
		retention: p.Cfg.WebhookEventRetention,
		schedule:  schedule,
	}
}

func (p *Pruner) Enabled() bool {
	return p.retention > 0
}

// RunOnce deletes rows older than the retention window in batches.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	if !p.Enabled() {
		return 0, nil
	}

	var total int64
	ran, err := p.locker.WithLock(ctx, pruneLockKey, pruneLockTTL, func(ctx context.Context) error {
		cutoff := p.clock.Now().UTC().Add(-p.retention)
		for {
			deleted, err := p.repo.PruneBefore(ctx, p.db, cutoff, pruneBatchSize)
			if err != nil {
				return err
			}
			total += deleted
			if deleted < pruneBatchSize {
				return nil
			}
		}
	})
	p.metrics.AddPruned(total)
	if err != nil {
		p.metrics.IncPruneError(err)
		p.log.Error("webhook delivery log prune failed", zap.Int64("deleted", total), zap.Error(err))
		return total, err
	}
	if !ran {
		p.log.Debug("webhook delivery log prune skipped, lease held elsewhere")
		return 0, nil
	}
	if total > 0 {
		p.log.Info("webhook delivery log pruned", zap.Int64("deleted", total))
	}
	return total, nil
}

func (p *Pruner) Start() error {
	if !p.Enabled() {
		p.log.Info("webhook delivery log retention disabled")
		return nil
	}
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(p.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), pruneLockTTL)
		defer cancel()
		_, _ = p.RunOnce(ctx)
	}); err != nil {
		return err
	}
	p.cron = c
	c.Start()
	p.log.Info("webhook delivery log pruner started",
		zap.String("schedule", p.schedule),
		zap.Duration("retention", p.retention),
	)
	return nil
}

func (p *Pruner) Stop(ctx context.Context) error {
	if p.cron == nil {
		return nil
	}
	select {
	case <-p.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
