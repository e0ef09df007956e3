package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/cabinet/internal/clock"
	patientdomain "github.com/smallbiznis/cabinet/internal/patient/domain"
	"github.com/smallbiznis/cabinet/pkg/db/option"
	"github.com/smallbiznis/cabinet/pkg/db/pagination"
	"github.com/smallbiznis/cabinet/pkg/repository"
	"github.com/smallbiznis/cabinet/pkg/rls"
	"github.com/smallbiznis/cabinet/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	store    repository.Repository[patientdomain.Patient]
	validate *validator.Validate
}

func NewService(p Params) patientdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("patient.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		store:    repository.ProvideStore[patientdomain.Patient](p.DB),
		validate: validator.New(),
	}
}

func (s *Service) Create(ctx context.Context, req patientdomain.CreateRequest) (*patientdomain.Patient, error) {
	cabinetID, ok := tenantctx.CabinetID(ctx)
	if !ok {
		return nil, repository.ErrMissingScope
	}

	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", patientdomain.ErrInvalidPatient, err)
	}

	now := s.clock.Now().UTC().Truncate(time.Second)
	patient := &patientdomain.Patient{
		ID:        s.genID.Generate(),
		CabinetID: cabinetID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.BirthDate != "" {
		birth, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			return nil, patientdomain.ErrInvalidPatient
		}
		patient.BirthDate = &birth
	}

	err := s.withTenant(ctx, cabinetID, func(store repository.Repository[patientdomain.Patient]) error {
		return store.Create(ctx, patient)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("patient created",
		zap.String("cabinet_id", cabinetID.String()),
		zap.String("patient_id", patient.ID.String()),
	)
	return patient, nil
}

// Get hides rows of other cabinets behind ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*patientdomain.Patient, error) {
	patientID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	cabinetID, _ := tenantctx.CabinetID(ctx)
	var patient *patientdomain.Patient
	err = s.withTenant(ctx, cabinetID, func(store repository.Repository[patientdomain.Patient]) error {
		var findErr error
		patient, findErr = store.FindByID(ctx, patientID)
		return findErr
	})
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, patientdomain.ErrNotFound
	}
	return patient, nil
}

func (s *Service) List(ctx context.Context, req patientdomain.ListRequest) (patientdomain.ListResponse, error) {
	cabinetID, _ := tenantctx.CabinetID(ctx)

	var items []*patientdomain.Patient
	err := s.withTenant(ctx, cabinetID, func(store repository.Repository[patientdomain.Patient]) error {
		var findErr error
		items, findErr = store.Find(ctx, nil,
			option.ApplyPagination(req.Pagination),
			// Keyset pagination walks ids downwards, newest first.
			option.WithSortBy(option.WithQuerySortBy("created_at", "desc", nil)),
		)
		return findErr
	})
	if err != nil {
		return patientdomain.ListResponse{}, err
	}

	size := req.PageSize
	if size <= 0 {
		size = 10
	}
	items, pageInfo := pagination.Trim(items, size, func(p *patientdomain.Patient) string {
		return p.ID.String()
	})
	if items == nil {
		items = []*patientdomain.Patient{}
	}
	return patientdomain.ListResponse{Patients: items, PageInfo: pageInfo}, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	patientID, err := parseID(id)
	if err != nil {
		return err
	}

	cabinetID, _ := tenantctx.CabinetID(ctx)
	var rows int64
	err = s.withTenant(ctx, cabinetID, func(store repository.Repository[patientdomain.Patient]) error {
		var deleteErr error
		rows, deleteErr = store.Delete(ctx, patientID)
		return deleteErr
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		return patientdomain.ErrNotFound
	}
	return nil
}

// Count reports how many patients a cabinet owns, regardless of the caller scope.
func (s *Service) Count(ctx context.Context, cabinetID snowflake.ID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM patients WHERE cabinet_id = ?`,
		cabinetID,
	).Scan(&count).Error
	return count, err
}

func (s *Service) withTenant(ctx context.Context, cabinetID snowflake.ID, fn func(store repository.Repository[patientdomain.Patient]) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cabinetID != 0 {
			if err := rls.WithCabinet(tx, cabinetID.Int64()); err != nil {
				return err
			}
		}
		return fn(s.store.WithTrx(tx))
	})
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, patientdomain.ErrInvalidID
	}
	return id, nil
}
