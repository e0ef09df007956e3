package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	cabinetdomain "github.com/smallbiznis/cabinet/internal/cabinet/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() cabinetdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, cabinet *cabinetdomain.Cabinet) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO cabinets (
			id, name, slug, is_active, trial_start_date, trial_end_date, max_patients,
			is_trial_active, stripe_customer_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cabinet.ID,
		cabinet.Name,
		cabinet.Slug,
		cabinet.IsActive,
		cabinet.TrialStartDate,
		cabinet.TrialEndDate,
		cabinet.MaxPatients,
		cabinet.IsTrialActive,
		cabinet.StripeCustomerID,
		cabinet.CreatedAt,
		cabinet.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*cabinetdomain.Cabinet, error) {
	var cabinet cabinetdomain.Cabinet
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, is_active, trial_start_date, trial_end_date, max_patients,
			is_trial_active, stripe_customer_id, created_at, updated_at
		 FROM cabinets
		 WHERE id = ?`,
		id,
	).Scan(&cabinet).Error
	if err != nil {
		return nil, err
	}
	if cabinet.ID == 0 {
		return nil, nil
	}
	return &cabinet, nil
}

func (r *repo) FindByCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*cabinetdomain.Cabinet, error) {
	if customerID == "" {
		return nil, nil
	}
	var cabinet cabinetdomain.Cabinet
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, is_active, trial_start_date, trial_end_date, max_patients,
			is_trial_active, stripe_customer_id, created_at, updated_at
		 FROM cabinets
		 WHERE stripe_customer_id = ?
		 LIMIT 1`,
		customerID,
	).Scan(&cabinet).Error
	if err != nil {
		return nil, err
	}
	if cabinet.ID == 0 {
		return nil, nil
	}
	return &cabinet, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).
		Model(&cabinetdomain.Cabinet{}).
		Where("id = ?", id).
		Updates(fields)
	return result.RowsAffected, result.Error
}

func (r *repo) EndTrial(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE cabinets
		 SET is_trial_active = ?, updated_at = ?
		 WHERE id = ? AND is_trial_active = ?`,
		false,
		at,
		id,
		true,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) AttachCustomer(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE cabinets
		 SET stripe_customer_id = ?, updated_at = ?
		 WHERE id = ? AND stripe_customer_id = ''`,
		customerID,
		at,
		id,
	)
	return result.RowsAffected, result.Error
}
