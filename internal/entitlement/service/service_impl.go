package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	cabinetdomain "github.com/smallbiznis/cabinet/internal/cabinet/domain"
	"github.com/smallbiznis/cabinet/internal/clock"
	entitlementdomain "github.com/smallbiznis/cabinet/internal/entitlement/domain"
	obsmetrics "github.com/smallbiznis/cabinet/internal/observability/metrics"
	patientdomain "github.com/smallbiznis/cabinet/internal/patient/domain"
	plandomain "github.com/smallbiznis/cabinet/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/cabinet/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	CabinetRepo cabinetdomain.Repository
	SubRepo     subscriptiondomain.Repository
	PlanRepo    plandomain.Repository
	Patients    patientdomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

// Service loads the freshest rows on every call; nothing is cached.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	cabinetRepo cabinetdomain.Repository
	subRepo     subscriptiondomain.Repository
	planRepo    plandomain.Repository
	patients    patientdomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) entitlementdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("entitlement.service"),
		clock:       p.Clock,
		cabinetRepo: p.CabinetRepo,
		subRepo:     p.SubRepo,
		planRepo:    p.PlanRepo,
		patients:    p.Patients,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Get(ctx context.Context, cabinetID snowflake.ID) (entitlementdomain.Entitlements, error) {
	cabinet, err := s.cabinetRepo.FindByID(ctx, s.db, cabinetID)
	if err != nil {
		return entitlementdomain.Entitlements{}, err
	}
	if cabinet == nil {
		return entitlementdomain.Entitlements{}, entitlementdomain.ErrCabinetNotFound
	}

	sub, err := s.subRepo.FindCurrentByCabinet(ctx, s.db, cabinetID)
	if err != nil {
		return entitlementdomain.Entitlements{}, err
	}

	var plan *plandomain.Plan
	if sub != nil {
		plan, err = s.planRepo.FindByID(ctx, s.db, sub.PlanID)
		if err != nil {
			return entitlementdomain.Entitlements{}, err
		}
		if plan == nil {
			s.log.Warn("subscription references missing plan",
				zap.String("cabinet_id", cabinetID.String()),
				zap.String("plan_id", sub.PlanID.String()),
			)
		}
	}

	return entitlementdomain.Compute(cabinet, sub, plan, s.clock.Now()), nil
}

func (s *Service) CheckPatientQuota(ctx context.Context, cabinetID snowflake.ID) error {
	ent, err := s.Get(ctx, cabinetID)
	if err != nil {
		return err
	}
	if ent.Unlimited() {
		return nil
	}

	existing, err := s.patients.Count(ctx, cabinetID)
	if err != nil {
		return err
	}
	if ent.CanCreate(existing) {
		return nil
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordEntitlementDenied(ctx, "patients", string(ent.Status))
	}
	return fmt.Errorf("%w: %d of %d patients used", entitlementdomain.ErrQuotaExceeded, existing, ent.MaxPatients)
}
