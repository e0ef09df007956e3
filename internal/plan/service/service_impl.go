package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/smallbiznis/cabinet/internal/clock"
	"github.com/smallbiznis/cabinet/internal/config"
	plandomain "github.com/smallbiznis/cabinet/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  plandomain.Repository
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  plandomain.Repository
}

func NewService(p Params) plandomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Resolve(ctx context.Context, refs ...string) (*plandomain.Plan, error) {
	var ref string
	for _, candidate := range refs {
		if strings.TrimSpace(candidate) != "" {
			ref = candidate
			break
		}
	}
	name := plandomain.NormalizeName(ref)
	if name == "" {
		return nil, fmt.Errorf("%w: no plan reference", plandomain.ErrUnmappedPlan)
	}

	plan, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: %q", plandomain.ErrUnmappedPlan, name)
	}
	return plan, nil
}

func (s *Service) List(ctx context.Context) ([]plandomain.Plan, error) {
	return s.repo.List(ctx, s.db)
}

// Sync writes the catalog into the plans table in one transaction. Plans
// missing from the catalog are left untouched so existing subscriptions keep
// resolving.
func (s *Service) Sync(ctx context.Context, catalog config.PlanCatalog) (int, error) {
	if err := config.ValidatePlanCatalog(catalog); err != nil {
		return 0, fmt.Errorf("%w: %v", plandomain.ErrInvalidPlan, err)
	}

	now := s.clock.Now().UTC().Truncate(time.Second)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range catalog.Plans {
			name := plandomain.NormalizeName(def.Name)
			displayName := strings.TrimSpace(def.DisplayName)
			if displayName == "" {
				displayName = strings.TrimSpace(def.Name)
			}
			currency := strings.ToLower(strings.TrimSpace(def.Currency))
			if currency == "" {
				currency = "eur"
			}
			plan := &plandomain.Plan{
				ID:          s.genID.Generate(),
				Name:        name,
				DisplayName: displayName,
				Price:       def.Price,
				Currency:    currency,
				MaxPatients: def.MaxPatients,
				Features:    pq.StringArray(append([]string{}, def.Features...)),
				IsActive:    def.IsActive(),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.repo.Upsert(ctx, tx, plan); err != nil {
				return fmt.Errorf("upsert plan %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("plan catalog synced", zap.Int("plans", len(catalog.Plans)))
	return len(catalog.Plans), nil
}
