package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/cabinet/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() plandomain.Repository {
	return &repo{}
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, display_name, price, currency, max_patients, features, is_active, created_at, updated_at
		 FROM plans
		 WHERE name = ?`,
		name,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, display_name, price, currency, max_patients, features, is_active, created_at, updated_at
		 FROM plans
		 WHERE id = ?`,
		id,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]plandomain.Plan, error) {
	var plans []plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, display_name, price, currency, max_patients, features, is_active, created_at, updated_at
		 FROM plans
		 ORDER BY price ASC, name ASC`,
	).Scan(&plans).Error
	return plans, err
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, plan *plandomain.Plan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plans (
			id, name, display_name, price, currency, max_patients, features, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			display_name = excluded.display_name,
			price = excluded.price,
			currency = excluded.currency,
			max_patients = excluded.max_patients,
			features = excluded.features,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		plan.ID,
		plan.Name,
		plan.DisplayName,
		plan.Price,
		plan.Currency,
		plan.MaxPatients,
		plan.Features,
		plan.IsActive,
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}
