package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	cabinetdomain "github.com/smallbiznis/cabinet/internal/cabinet/domain"
	"github.com/smallbiznis/cabinet/internal/clock"
	"github.com/smallbiznis/cabinet/internal/config"
	"github.com/smallbiznis/cabinet/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  cabinetdomain.Repository

	trialDays        int
	trialMaxPatients int
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   cabinetdomain.Repository
	Config config.Config
}

func NewService(p Params) cabinetdomain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("cabinet.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		trialDays:        p.Config.TrialDays,
		trialMaxPatients: p.Config.TrialMaxPatients,
	}
}

// Create registers a tenant and opens its trial window.
func (s *Service) Create(ctx context.Context, req cabinetdomain.CreateRequest) (*cabinetdomain.Cabinet, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, cabinetdomain.ErrInvalidName
	}

	trialDays := s.trialDays
	if req.TrialDays != nil {
		trialDays = *req.TrialDays
	}
	if trialDays < 0 {
		return nil, cabinetdomain.ErrInvalidTrialDays
	}

	maxPatients := s.trialMaxPatients
	if req.MaxPatients != nil {
		maxPatients = *req.MaxPatients
	}
	if maxPatients < cabinetdomain.UnlimitedPatients {
		return nil, cabinetdomain.ErrInvalidMaxPatients
	}

	now := s.clock.Now().UTC().Truncate(time.Second)
	trialEnd := now.AddDate(0, 0, trialDays)
	id := s.genID.Generate()
	cabinet := &cabinetdomain.Cabinet{
		ID:             id,
		Name:           name,
		Slug:           slug.Make(name),
		IsActive:       true,
		TrialStartDate: &now,
		TrialEndDate:   &trialEnd,
		MaxPatients:    maxPatients,
		IsTrialActive:  trialDays > 0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if cabinet.Slug == "" {
		cabinet.Slug = id.String()
	}

	err := s.repo.Insert(ctx, s.db, cabinet)
	if err != nil && db.IsDuplicateKeyErr(err) {
		cabinet.Slug = cabinet.Slug + "-" + strings.ToLower(id.Base36())
		err = s.repo.Insert(ctx, s.db, cabinet)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("cabinet registered",
		zap.String("cabinet_id", id.String()),
		zap.String("slug", cabinet.Slug),
		zap.Timep("trial_end_date", cabinet.TrialEndDate),
	)
	return cabinet, nil
}

func (s *Service) Get(ctx context.Context, id string) (*cabinetdomain.Cabinet, error) {
	cabinetID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || cabinetID == 0 {
		return nil, cabinetdomain.ErrInvalidID
	}

	cabinet, err := s.repo.FindByID(ctx, s.db, cabinetID)
	if err != nil {
		return nil, err
	}
	if cabinet == nil {
		return nil, cabinetdomain.ErrNotFound
	}
	return cabinet, nil
}

// Update applies administrative changes. Quota changes take effect on the
// next entitlement computation without any billing event.
func (s *Service) Update(ctx context.Context, id string, req cabinetdomain.UpdateRequest) (*cabinetdomain.Cabinet, error) {
	cabinetID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || cabinetID == 0 {
		return nil, cabinetdomain.ErrInvalidID
	}

	fields := map[string]any{}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}
	if req.MaxPatients != nil {
		if *req.MaxPatients < cabinetdomain.UnlimitedPatients {
			return nil, cabinetdomain.ErrInvalidMaxPatients
		}
		fields["max_patients"] = *req.MaxPatients
	}

	if len(fields) > 0 {
		fields["updated_at"] = s.clock.Now().UTC().Truncate(time.Second)
		rows, err := s.repo.Update(ctx, s.db, cabinetID, fields)
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			return nil, cabinetdomain.ErrNotFound
		}
	}

	return s.Get(ctx, id)
}
